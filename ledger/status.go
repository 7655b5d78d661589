package ledger

import (
	"context"
	"errors"

	"github.com/bytedance/sonic"

	"ledger-lists/domain"
)

// TxStatus looks up a transaction on the query peer. An empty result means
// the transaction is not visible yet.
func (c *Client) TxStatus(ctx context.Context, h domain.TxHandle) (domain.Outcome, error) {
	q := map[string]any{
		"select": []string{"*"},
		"from":   []any{"_tx/id", string(h)},
		"opts":   map[string]any{"compact": true},
	}
	var rows []map[string]sonic.NoCopyRawMessage
	if err := c.post(ctx, "tx-status", "query", q, &rows); err != nil {
		var rej *domain.RejectedError
		if errors.As(err, &rej) {
			// A refused status query says nothing about the transaction.
			return domain.Outcome{}, &domain.SubmissionError{Op: "tx-status", Err: errors.New(rej.Reason)}
		}
		return domain.Outcome{}, err
	}
	if len(rows) == 0 {
		return domain.Outcome{Handle: h, Status: domain.Pending}, nil
	}
	if raw, ok := rows[0]["error"]; ok && !isNull(raw) {
		return domain.Outcome{Handle: h, Status: domain.Rejected, Reason: reason(raw)}, nil
	}
	return domain.Outcome{Handle: h, Status: domain.Confirmed}, nil
}

func isNull(raw []byte) bool {
	s := string(raw)
	return s == "" || s == "null" || s == `""` || s == "false"
}

func reason(raw []byte) string {
	var s string
	if err := sonic.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj map[string]any
	if err := sonic.Unmarshal(raw, &obj); err == nil {
		if m, ok := obj["message"].(string); ok && m != "" {
			return m
		}
	}
	return string(raw)
}
