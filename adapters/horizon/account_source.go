package horizon

import (
	"context"

	"github.com/stellar/go/clients/horizonclient"

	"github.com/lumenlearn/starpass/ports"
)

// AccountSource reads account sequence numbers from a Horizon server.
type AccountSource struct {
	client horizonclient.ClientInterface
}

var _ ports.AccountSource = (*AccountSource)(nil)

func NewAccountSource(client horizonclient.ClientInterface) *AccountSource {
	return &AccountSource{client: client}
}

func (s *AccountSource) SequenceForAccount(ctx context.Context, accountID string) (int64, error) {
	account, err := s.client.AccountDetail(horizonclient.AccountRequest{AccountID: accountID})
	if err != nil {
		return 0, err
	}
	return account.GetSequenceNumber()
}
