package ports

import "context"

// AccountSource reads account state from the network. The issuer needs the
// server account's current sequence number to build a challenge envelope.
type AccountSource interface {
	SequenceForAccount(ctx context.Context, accountID string) (int64, error)
}
