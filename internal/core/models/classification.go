package models

type Category int16

const (
	CategoryPurchaseOrder Category = 0
	CategoryPayout        Category = 1
)

type Direction int16

const (
	DirectionDebit  Direction = 0
	DirectionCredit Direction = 1
)

type Channel int16

const (
	ChannelCustomerToBusiness Channel = 0
	ChannelPushPayment        Channel = 1
	ChannelBusinessToCustomer Channel = 2
	ChannelBusinessToBusiness Channel = 3
)

// Aggregator identifies the remote provider and the currency rail it settles in.
type Aggregator int16

const (
	AggregatorMpesaKE   Aggregator = 0
	AggregatorPaypalUSD Aggregator = 1
)

// Currency returns the ISO 4217 code settled by the aggregator.
func (a Aggregator) Currency() string {
	switch a {
	case AggregatorMpesaKE:
		return "KES"
	case AggregatorPaypalUSD:
		return "USD"
	default:
		return ""
	}
}
