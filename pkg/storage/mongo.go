package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	connectMaxAttempts     = 36
	connectRetrySpacing    = 2 * time.Second
	serverSelectionTimeout = 2 * time.Second
)

// MongoStore is the Store implementation backed by go.mongodb.org/mongo-driver.
// Connection is lazy: the driver is not dialed until the first
// operation, and that first dial retries internally before the store
// gives up and marks itself unavailable for the rest of the process.
type MongoStore struct {
	uri       string
	dbName    string
	clientID  string
	tlsConfig *tls.Config
	logger    zerolog.Logger

	mu          sync.Mutex
	connectOnce sync.Once
	client      *mongo.Client
	available   bool
}

// NewMongoStore builds a store that will lazily connect to uri/dbName
// on first use. clientID is a short id used to scope log lines so
// multiple scheduler/worker replicas' connections can be told apart.
// tlsConfig carries the mutual-TLS material the store connection
// presents to Mongo (spec.md §6); a nil tlsConfig connects without TLS,
// which production deployments must not do.
func NewMongoStore(uri, dbName, clientID string, tlsConfig *tls.Config) *MongoStore {
	return &MongoStore{
		uri:       uri,
		dbName:    dbName,
		clientID:  clientID,
		tlsConfig: tlsConfig,
		logger:    zerolog.Nop(),
	}
}

// SetLogger attaches a zerolog logger; defaults to a no-op logger.
func (s *MongoStore) SetLogger(logger zerolog.Logger) {
	s.logger = logger.With().Str("client_id", s.clientID).Logger()
}

func (s *MongoStore) ensureConnected(ctx context.Context) error {
	s.connectOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		for attempt := 1; attempt <= connectMaxAttempts; attempt++ {
			opts := options.Client().
				ApplyURI(s.uri).
				SetServerSelectionTimeout(serverSelectionTimeout)
			if s.tlsConfig != nil {
				opts.SetTLSConfig(s.tlsConfig)
			}

			client, err := mongo.Connect(ctx, opts)
			if err == nil {
				pingCtx, cancel := context.WithTimeout(ctx, serverSelectionTimeout)
				err = client.Ping(pingCtx, nil)
				cancel()
				if err == nil {
					s.client = client
					s.available = true
					s.logger.Info().Int("attempt", attempt).Msg("store connected")
					return
				}
			}

			s.logger.Warn().Int("attempt", attempt).Err(err).Msg("store connect attempt failed")
			if attempt < connectMaxAttempts {
				time.Sleep(connectRetrySpacing)
			}
		}

		s.logger.Error().Int("attempts", connectMaxAttempts).Msg("store unavailable after exhausting connect attempts")
	})

	s.mu.Lock()
	available := s.available
	s.mu.Unlock()

	if !available {
		return ErrUnavailable
	}
	return nil
}

func (s *MongoStore) collection(name string) *mongo.Collection {
	return s.client.Database(s.dbName).Collection(name)
}

func toBSON(f Filter) bson.M {
	if f == nil {
		return bson.M{}
	}
	return bson.M(f)
}

func (s *MongoStore) InsertOne(ctx context.Context, collection string, doc any) error {
	if err := s.ensureConnected(ctx); err != nil {
		s.logger.Error().Str("collection", collection).Msg("insert one: store unavailable")
		return err
	}
	_, err := s.collection(collection).InsertOne(ctx, doc)
	if err != nil {
		s.logger.Error().Str("collection", collection).Err(err).Msg("insert one failed")
		return fmt.Errorf("insert one: %w", err)
	}
	return nil
}

func (s *MongoStore) InsertMany(ctx context.Context, collection string, docs []any) error {
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	_, err := s.collection(collection).InsertMany(ctx, docs)
	if err != nil {
		s.logger.Error().Str("collection", collection).Err(err).Msg("insert many failed")
		return fmt.Errorf("insert many: %w", err)
	}
	return nil
}

func (s *MongoStore) FindOne(ctx context.Context, collection string, filter Filter, projection Projection, out any) error {
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}

	opts := options.FindOne()
	if projection != nil {
		opts.SetProjection(bson.M(projection))
	}

	err := s.collection(collection).FindOne(ctx, toBSON(filter), opts).Decode(out)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return mongo.ErrNoDocuments
		}
		s.logger.Error().Str("collection", collection).Err(err).Msg("find one failed")
		return fmt.Errorf("find one: %w", err)
	}
	return nil
}

func (s *MongoStore) FindAll(ctx context.Context, collection string, filter Filter, out any) error {
	if err := s.ensureConnected(ctx); err != nil {
		return nil // empty result, not an error: caller's slice stays as-is
	}

	cur, err := s.collection(collection).Find(ctx, toBSON(filter))
	if err != nil {
		s.logger.Error().Str("collection", collection).Err(err).Msg("find all failed")
		return fmt.Errorf("find all: %w", err)
	}
	defer cur.Close(ctx)

	if err := cur.All(ctx, out); err != nil {
		return fmt.Errorf("find all decode: %w", err)
	}
	return nil
}

func (s *MongoStore) FindCursor(ctx context.Context, collection string, filter Filter) (Cursor, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return nil, err
	}

	cur, err := s.collection(collection).Find(ctx, toBSON(filter))
	if err != nil {
		return nil, fmt.Errorf("find cursor: %w", err)
	}
	return &mongoCursor{cur: cur}, nil
}

func (s *MongoStore) UpdateOne(ctx context.Context, collection string, filter Filter, patch Patch, upsert bool) error {
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}

	opts := options.Update().SetUpsert(upsert)
	_, err := s.collection(collection).UpdateOne(ctx, toBSON(filter), bson.M(patch), opts)
	if err != nil {
		s.logger.Error().Str("collection", collection).Err(err).Msg("update one failed")
		return fmt.Errorf("update one: %w", err)
	}
	return nil
}

func (s *MongoStore) UpdateMany(ctx context.Context, collection string, filter Filter, patch Patch) error {
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}
	_, err := s.collection(collection).UpdateMany(ctx, toBSON(filter), bson.M(patch))
	if err != nil {
		s.logger.Error().Str("collection", collection).Err(err).Msg("update many failed")
		return fmt.Errorf("update many: %w", err)
	}
	return nil
}

func (s *MongoStore) DeleteOne(ctx context.Context, collection string, filter Filter) error {
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}
	_, err := s.collection(collection).DeleteOne(ctx, toBSON(filter))
	if err != nil {
		s.logger.Error().Str("collection", collection).Err(err).Msg("delete one failed")
		return fmt.Errorf("delete one: %w", err)
	}
	return nil
}

func (s *MongoStore) DeleteMany(ctx context.Context, collection string, filter Filter) error {
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}
	_, err := s.collection(collection).DeleteMany(ctx, toBSON(filter))
	if err != nil {
		s.logger.Error().Str("collection", collection).Err(err).Msg("delete many failed")
		return fmt.Errorf("delete many: %w", err)
	}
	return nil
}

func (s *MongoStore) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return 0, nil // caller treats unavailable store as zero count
	}

	count, err := s.collection(collection).CountDocuments(ctx, toBSON(filter))
	if err != nil {
		s.logger.Error().Str("collection", collection).Err(err).Msg("count failed")
		return 0, fmt.Errorf("count: %w", err)
	}
	return count, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

type mongoCursor struct {
	cur *mongo.Cursor
}

func (c *mongoCursor) Next(ctx context.Context) bool  { return c.cur.Next(ctx) }
func (c *mongoCursor) Decode(v any) error              { return c.cur.Decode(v) }
func (c *mongoCursor) Close(ctx context.Context) error { return c.cur.Close(ctx) }
func (c *mongoCursor) Err() error                      { return c.cur.Err() }
