package types

import (
	"context"
	"time"
)

type TypeStore interface {
	// CreateType creates the type or returns the existing one with the same id.
	CreateType(ctx context.Context, namespace string, t *SdsType) (*SdsType, error)
	DeleteType(ctx context.Context, namespace, typeID string) error
}

type StreamStore interface {
	CreateOrUpdateStream(ctx context.Context, namespace string, s *SdsStream) error
	// InsertValues takes a JSON array of records keyed by the stream type's index.
	InsertValues(ctx context.Context, namespace, streamID string, values []byte) error
	DeleteStream(ctx context.Context, namespace, streamID string) error
}

type DataViewStore interface {
	CreateView(ctx context.Context, namespace string, view *DataView) error
	GetView(ctx context.Context, namespace, viewID string) (*DataView, error)
	// PutView replaces the whole definition.
	PutView(ctx context.Context, namespace string, view *DataView) error
	DeleteView(ctx context.Context, namespace, viewID string) error
}

type DataViewResolver interface {
	ResolveDataItems(ctx context.Context, namespace, viewID, queryID string) (*ResolvedItems, error)
	ResolveIneligibleDataItems(ctx context.Context, namespace, viewID, queryID string) (*ResolvedItems, error)
	ResolveAvailableFieldSets(ctx context.Context, namespace, viewID string) (*ResolvedFieldSets, error)
}

type DataReader interface {
	GetInterpolatedData(ctx context.Context, namespace, viewID string, start, end time.Time, interval time.Duration) (Table, error)
}

// RemoteStore is everything the tutorial needs from the data service.
type RemoteStore interface {
	TypeStore
	StreamStore
	DataViewStore
	DataViewResolver
	DataReader
}
