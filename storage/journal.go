package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"ledger-lists/domain"
)

// Entry is one terminal command outcome.
type Entry struct {
	DB        string
	Handle    domain.TxHandle
	Kind      domain.CommandKind
	Target    domain.ID
	Identity  string
	Status    domain.Status
	Reason    string
	TempIDs   map[domain.ID]domain.ID
	Waited    time.Duration
	Completed time.Time
}

type outcomeEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Kind         string `json:"Kind"`
	Target       string `json:"Target"`
	Identity     string `json:"Identity"`
	Status       string `json:"Status"`
	Reason       string `json:"Reason,omitempty"`
	TempIDs      string `json:"TempIDs,omitempty"`
	WaitedMs     int64  `json:"WaitedMs"`
	Completed    string `json:"Completed"`
}

type tableClient interface {
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
}

// TableJournal records outcomes in an Azure Table, partitioned by database.
type TableJournal struct {
	table tableClient
}

// NewTableJournal connects to table using an account connection string.
func NewTableJournal(connStr, table string) (*TableJournal, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &TableJournal{table: svc.NewClient(table)}, nil
}

// Ensure creates the journal table unless it already exists.
func (j *TableJournal) Ensure(ctx context.Context) error {
	if _, err := j.table.CreateTable(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists) {
			return nil
		}
		return err
	}
	return nil
}

// Record upserts e. Re-recording the same handle overwrites the row.
func (j *TableJournal) Record(ctx context.Context, e Entry) error {
	payload, err := encodeEntry(e)
	if err != nil {
		return err
	}
	_, err = j.table.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

func encodeEntry(e Entry) ([]byte, error) {
	rk := string(e.Handle)
	if rk == "" {
		rk = "unknown-" + uuid.NewString()
	}
	ent := outcomeEntity{
		PartitionKey: e.DB,
		RowKey:       rk,
		Kind:         string(e.Kind),
		Target:       e.Target.String(),
		Identity:     e.Identity,
		Status:       string(e.Status),
		Reason:       e.Reason,
		WaitedMs:     e.Waited.Milliseconds(),
		Completed:    e.Completed.UTC().Format(time.RFC3339Nano),
	}
	if len(e.TempIDs) > 0 {
		ids := make(map[string]string, len(e.TempIDs))
		for k, v := range e.TempIDs {
			ids[k.String()] = v.String()
		}
		data, err := sonic.Marshal(ids)
		if err != nil {
			return nil, err
		}
		ent.TempIDs = string(data)
	}
	return sonic.Marshal(ent)
}
