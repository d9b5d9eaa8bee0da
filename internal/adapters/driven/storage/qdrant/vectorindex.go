// Package qdrant provides a driven.VectorIndex backed by a Qdrant server,
// spoken to over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/custodia-labs/ragbot/internal/adapters/driven/storage"
	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// Default ports.
const (
	RESTPort = 6333
	GRPCPort = 6334
)

// client is the subset of *qdrant.Client used by the index.
type client interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Scroll(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	Close() error
}

// VectorIndex stores records as Qdrant points. Record IDs must be UUIDs.
type VectorIndex struct {
	client client

	mu     sync.Mutex
	states map[string]storage.CollectionState
}

// Config addresses the Qdrant server.
type Config struct {
	// URL is the server address, e.g. http://localhost:6333. The REST
	// port is mapped to the gRPC port.
	URL string

	// APIKey authenticates against Qdrant Cloud.
	APIKey string
}

// New connects to Qdrant.
func New(cfg Config) (*VectorIndex, error) {
	qcfg, err := clientConfig(cfg)
	if err != nil {
		return nil, err
	}
	c, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant: %w", domain.ErrVectorIndexUnavailable, err)
	}
	return newWithClient(c), nil
}

func newWithClient(c client) *VectorIndex {
	return &VectorIndex{client: c, states: make(map[string]storage.CollectionState)}
}

// clientConfig turns a URL into a gRPC client configuration.
func clientConfig(cfg Config) (*qdrant.Config, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" {
		return nil, &domain.ConfigError{Field: "vector_db_url", Reason: fmt.Sprintf("invalid qdrant url %q", cfg.URL)}
	}

	port := GRPCPort
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, &domain.ConfigError{Field: "vector_db_url", Reason: "invalid port " + p}
		}
		if n != RESTPort {
			port = n
		}
	}

	return &qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	}, nil
}

// Address returns host:port as dialled, for logging.
func Address(cfg Config) string {
	qcfg, err := clientConfig(cfg)
	if err != nil {
		return cfg.URL
	}
	return net.JoinHostPort(qcfg.Host, strconv.Itoa(qcfg.Port))
}

// state returns what is known about a collection. Zero Dimensions means
// the collection does not exist.
func (v *VectorIndex) state(ctx context.Context, name string) (storage.CollectionState, error) {
	v.mu.Lock()
	st, ok := v.states[name]
	v.mu.Unlock()
	if ok {
		return st, nil
	}

	exists, err := v.client.CollectionExists(ctx, name)
	if err != nil {
		return st, unavailable("check collection", err)
	}
	if !exists {
		return st, nil
	}

	info, err := v.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return st, unavailable("get collection info", err)
	}
	st.Dimensions = int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())

	limit := uint32(1)
	points, err := v.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: name,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return st, unavailable("scroll collection", err)
	}
	if len(points) > 0 {
		st.Fingerprint = points[0].GetPayload()[storage.PayloadFingerprint].GetStringValue()
	}

	v.remember(name, st)
	return st, nil
}

func (v *VectorIndex) remember(name string, st storage.CollectionState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.states[name] = st
}

// Upsert validates the batch, creates the collection if needed and writes
// all points in one request.
func (v *VectorIndex) Upsert(ctx context.Context, name string, records []domain.IndexedRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	before, err := v.state(ctx, name)
	if err != nil {
		return 0, err
	}
	after, err := storage.CheckBatch(name, before, records)
	if err != nil {
		return 0, err
	}

	if before.Dimensions == 0 {
		err := v.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(after.Dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return 0, unavailable("create collection", err)
		}
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(r.ID),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: toPayload(r),
		}
	}

	wait := true
	if _, err := v.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return 0, unavailable("upsert points", err)
	}

	v.remember(name, after)
	return len(records), nil
}

// Query runs a nearest-neighbour search.
func (v *VectorIndex) Query(ctx context.Context, name string, q domain.VectorQuery) ([]domain.ScoredRecord, error) {
	st, err := v.state(ctx, name)
	if err != nil {
		return nil, err
	}
	if st.Dimensions == 0 {
		return nil, domain.CollectionNotFound(name)
	}
	if q.K <= 0 {
		return []domain.ScoredRecord{}, nil
	}
	if err := storage.CheckQuery(name, st, q); err != nil {
		return nil, err
	}

	limit := uint64(q.K)
	points, err := v.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(q.Vector...),
		Limit:          &limit,
		Filter:         toFilter(q.Filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, unavailable("query points", err)
	}

	out := make([]domain.ScoredRecord, 0, len(points))
	for _, p := range points {
		r := fromPayload(p.GetPayload())
		r.ID = p.GetId().GetUuid()
		out = append(out, domain.ScoredRecord{Record: r, Score: float64(p.GetScore())})
	}
	return out, nil
}

// DeleteSource removes the points of one source file.
func (v *VectorIndex) DeleteSource(ctx context.Context, name, source string) error {
	st, err := v.state(ctx, name)
	if err != nil {
		return err
	}
	if st.Dimensions == 0 {
		return nil
	}

	wait := true
	_, err = v.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: name,
		Wait:           &wait,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(storage.PayloadSource, source)},
		}),
	})
	if err != nil {
		return unavailable("delete points", err)
	}
	return nil
}

// Count returns the exact number of points.
func (v *VectorIndex) Count(ctx context.Context, name string) (int, error) {
	st, err := v.state(ctx, name)
	if err != nil {
		return 0, err
	}
	if st.Dimensions == 0 {
		return 0, domain.CollectionNotFound(name)
	}

	exact := true
	n, err := v.client.Count(ctx, &qdrant.CountPoints{CollectionName: name, Exact: &exact})
	if err != nil {
		return 0, unavailable("count points", err)
	}
	return int(n), nil
}

// Close closes the gRPC connection.
func (v *VectorIndex) Close() error {
	return v.client.Close()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: qdrant %s: %w", domain.ErrVectorIndexUnavailable, op, err)
}
