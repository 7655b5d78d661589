package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"ledger-lists/domain"
)

// Submission is a command ready for the ledger. When Envelope is set the
// command goes to the signed command endpoint, otherwise Command.Tx is
// transacted directly.
type Submission struct {
	Command  domain.Command
	Envelope *domain.SignedEnvelope
}

// Receipt acknowledges a submission. For unsigned submissions the ledger
// reply is itself the confirmation and Outcome is terminal; for signed ones
// Outcome is Pending until the poller resolves Handle.
type Receipt struct {
	Handle  domain.TxHandle
	Outcome domain.Outcome
}

type transactReply struct {
	ID      string               `json:"id"`
	Status  int                  `json:"status"`
	TempIDs map[string]domain.ID `json:"tempids"`
	Data    *struct {
		ID      string               `json:"id"`
		TempIDs map[string]domain.ID `json:"tempids"`
	} `json:"data"`
}

// Submit sends s to the ledger and returns the transaction handle.
func (c *Client) Submit(ctx context.Context, s Submission) (Receipt, error) {
	if s.Envelope != nil {
		handle, err := c.Command(ctx, *s.Envelope)
		if err != nil {
			return Receipt{}, err
		}
		return Receipt{Handle: handle, Outcome: domain.Outcome{Handle: handle, Status: domain.Pending}}, nil
	}
	return c.Transact(ctx, s.Command.Tx)
}

// Command posts a signed envelope and returns the ledger's transaction id.
func (c *Client) Command(ctx context.Context, env domain.SignedEnvelope) (domain.TxHandle, error) {
	var txID string
	if err := c.post(ctx, "command", "command", env, &txID); err != nil {
		return "", err
	}
	txID = strings.TrimSpace(txID)
	if txID == "" {
		return "", &domain.SubmissionError{Op: "command", Err: errors.New("ledger returned no transaction id")}
	}
	return domain.TxHandle(txID), nil
}

// Transact posts unsigned entity documents. A successful reply confirms the
// write and carries the temporary id mapping.
func (c *Client) Transact(ctx context.Context, tx []byte) (Receipt, error) {
	var reply transactReply
	if err := c.post(ctx, "transact", "transact", tx, &reply); err != nil {
		return Receipt{}, err
	}

	tempIDs := reply.TempIDs
	txID := reply.ID
	if reply.Data != nil {
		if len(reply.Data.TempIDs) > 0 {
			tempIDs = reply.Data.TempIDs
		}
		if txID == "" {
			txID = reply.Data.ID
		}
	}
	if txID == "" {
		txID = "local-" + uuid.NewString()
	}

	mapping := make(map[domain.ID]domain.ID, len(tempIDs))
	for temp, id := range tempIDs {
		mapping[domain.ID(temp)] = id
	}
	handle := domain.TxHandle(txID)
	return Receipt{
		Handle:  handle,
		Outcome: domain.Outcome{Handle: handle, Status: domain.Confirmed, TempIDs: mapping},
	}, nil
}
