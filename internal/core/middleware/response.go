package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/Nzyazin/lnmo/internal/core/models"
)

func writeDanger(w http.ResponseWriter, code int, message string) {
	body, _ := json.Marshal(models.DangerEnvelope(message))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}
