package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo implementa Store sobre um banco MongoDB. Os ids são strings; Add usa
// o hex de um ObjectID novo. Subscribe depende de change streams, portanto
// o servidor precisa rodar como replica set.
type Mongo struct {
	db  *mongo.Database
	log zerolog.Logger
}

// NewMongo cria o Store.
func NewMongo(db *mongo.Database, logger zerolog.Logger) *Mongo {
	return &Mongo{db: db, log: logger.With().Str("component", "docstore").Logger()}
}

// Get lê um documento pelo _id.
func (s *Mongo) Get(ctx context.Context, collection, id string) (Record, error) {
	raw, err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).DecodeBytes()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("buscar %s/%s: %w", collection, id, err)
	}
	return Record{ID: id, Data: raw}, nil
}

// Query traduz a consulta para um find ordenado por (OrderBy, _id).
func (s *Mongo) Query(ctx context.Context, collection string, q Query) ([]Record, error) {
	filter := bson.D{}
	for _, f := range q.Where {
		filter = append(filter, bson.E{Key: f.Field, Value: f.Value})
	}

	dir := 1
	op := "$gt"
	if q.Desc {
		dir = -1
		op = "$lt"
	}
	if q.After != nil {
		if q.OrderBy != "" {
			filter = append(filter, bson.E{Key: "$or", Value: bson.A{
				bson.M{q.OrderBy: bson.M{op: q.After.Value}},
				bson.M{q.OrderBy: q.After.Value, "_id": bson.M{op: q.After.ID}},
			}})
		} else {
			filter = append(filter, bson.E{Key: "_id", Value: bson.M{op: q.After.ID}})
		}
	}

	sortSpec := bson.D{}
	if q.OrderBy != "" {
		sortSpec = append(sortSpec, bson.E{Key: q.OrderBy, Value: dir})
	}
	sortSpec = append(sortSpec, bson.E{Key: "_id", Value: dir})

	opts := options.Find().SetSort(sortSpec)
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("consultar %s: %w", collection, err)
	}
	defer cursor.Close(ctx)
	return readAll(ctx, cursor)
}

func readAll(ctx context.Context, cursor *mongo.Cursor) ([]Record, error) {
	var records []Record
	for cursor.Next(ctx) {
		raw := make(bson.Raw, len(cursor.Current))
		copy(raw, cursor.Current)
		id, _ := raw.Lookup("_id").StringValueOK()
		records = append(records, Record{ID: id, Data: raw})
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Subscribe abre um change stream na coleção e, a cada evento, relê a
// coleção inteira e entrega o snapshot.
func (s *Mongo) Subscribe(collection string, fn func(Snapshot), onErr func(error)) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	coll := s.db.Collection(collection)

	stream, err := coll.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("assinar %s: %w", collection, err)
	}

	go func() {
		defer stream.Close(context.Background())
		for {
			snap, err := s.snapshot(ctx, coll)
			if err != nil {
				if ctx.Err() == nil && onErr != nil {
					onErr(err)
				}
				return
			}
			if ctx.Err() != nil {
				return
			}
			fn(snap)

			if !stream.Next(ctx) {
				if err := stream.Err(); err != nil && ctx.Err() == nil {
					s.log.Error().Err(err).Str("collection", collection).Msg("change stream encerrado")
					if onErr != nil {
						onErr(err)
					}
				}
				return
			}
			// eventos acumulados viram um único snapshot
			for stream.TryNext(ctx) {
			}
		}
	}()

	return cancel, nil
}

func (s *Mongo) snapshot(ctx context.Context, coll *mongo.Collection) (Snapshot, error) {
	cursor, err := coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)
	records, err := readAll(ctx, cursor)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s: %w", coll.Name(), err)
	}
	return Snapshot{Records: records}, nil
}

// Set substitui (ou cria) o documento id.
func (s *Mongo) Set(ctx context.Context, collection, id string, doc any) error {
	raw, err := encode(doc, id)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, raw, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("gravar %s/%s: %w", collection, id, err)
	}
	return nil
}

// Add insere doc com um id novo.
func (s *Mongo) Add(ctx context.Context, collection string, doc any) (string, error) {
	id := primitive.NewObjectID().Hex()
	raw, err := encode(doc, id)
	if err != nil {
		return "", err
	}
	if _, err := s.db.Collection(collection).InsertOne(ctx, raw); err != nil {
		return "", fmt.Errorf("inserir em %s: %w", collection, err)
	}
	return id, nil
}

// Update aplica $set com os campos informados.
func (s *Mongo) Update(ctx context.Context, collection, id string, fields Fields) error {
	set := bson.M{}
	for k, v := range fields {
		set[k] = v
	}
	res, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("atualizar %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete remove o documento.
func (s *Mongo) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("remover %s/%s: %w", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
