package domain

// Event bus channel names. Every producer and consumer references these
// constants; queue name strings are never written inline.
const (
	Exchange           = "trades"
	DeadLetterExchange = "trades.dlx"
	DeadLetterQueue    = "trades.dead_letter"

	ChannelTradeRequested = "trade.requested"
	ChannelTradeValidated = "trade.validated"
	ChannelTradeRejected  = "trade.rejected"
	ChannelTradeSettled   = "trade.settled"
)

// AllChannels lists every routing key in pipeline order.
var AllChannels = []string{
	ChannelTradeRequested,
	ChannelTradeValidated,
	ChannelTradeRejected,
	ChannelTradeSettled,
}
