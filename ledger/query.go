package ledger

import (
	"context"

	"ledger-lists/domain"
)

// Query runs a declarative query document and decodes the result into out.
func (c *Client) Query(ctx context.Context, q any, out any) error {
	return c.post(ctx, "query", "query", q, out)
}

// FetchLists loads every list with its tasks and their assignees.
func (c *Client) FetchLists(ctx context.Context) ([]domain.List, error) {
	q := map[string]any{
		"select": []any{"*", map[string]any{
			"tasks": []any{"*", map[string]any{"assignedTo": []string{"*"}}},
		}},
		"from": "list",
		"opts": map[string]any{"compact": true, "orderBy": []string{"ASC", "_id"}},
	}
	lists := []domain.List{}
	if err := c.Query(ctx, q, &lists); err != nil {
		return nil, err
	}
	for i := range lists {
		if lists[i].Tasks == nil {
			lists[i].Tasks = []domain.Task{}
		}
	}
	return lists, nil
}

// FetchAssignees loads the assignee selection list.
func (c *Client) FetchAssignees(ctx context.Context) ([]domain.Assignee, error) {
	q := map[string]any{
		"select": []string{"_id", "email", "name"},
		"from":   "assignee",
		"opts":   map[string]any{"compact": true, "orderBy": []string{"ASC", "_id"}},
	}
	out := []domain.Assignee{}
	if err := c.Query(ctx, q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchOwners loads every user that owns a list. The ledger returns one row
// per owned list, so owners are deduplicated by id.
func (c *Client) FetchOwners(ctx context.Context) ([]domain.Owner, error) {
	q := map[string]any{
		"select": map[string]any{"?user": []string{"_id", "username"}},
		"where":  [][]string{{"?list", "list/listOwner", "?user"}},
	}
	var rows []domain.Owner
	if err := c.Query(ctx, q, &rows); err != nil {
		return nil, err
	}
	seen := make(map[domain.ID]struct{}, len(rows))
	owners := make([]domain.Owner, 0, len(rows))
	for _, o := range rows {
		if _, dup := seen[o.ID]; dup {
			continue
		}
		seen[o.ID] = struct{}{}
		owners = append(owners, o)
	}
	return owners, nil
}
