package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Vishal8376/Farm2Consumer/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrTooManyRetries = errors.New("cart modified concurrently too many times")

const maxCartRetries = 8

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

// cartDocument holds one buyer's lines. Every write is conditional on
// Version, so read-modify-write cycles never lose a concurrent update.
type cartDocument struct {
	UserID    int64             `bson:"user_id"`
	Items     []domain.CartLine `bson:"items"`
	Version   int64             `bson:"version"`
	UpdatedAt time.Time         `bson:"updated_at"`
}

type MongoCartRepository struct {
	collection *mongo.Collection
}

func NewMongoCartRepository(db *mongo.Database) *MongoCartRepository {
	return &MongoCartRepository{collection: db.Collection("carts")}
}

func (m *MongoCartRepository) Ping(ctx context.Context) error {
	return m.collection.Database().Client().Ping(ctx, nil)
}

func (m *MongoCartRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "items.line_id", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (m *MongoCartRepository) load(ctx context.Context, userID int64) (*cartDocument, error) {
	var doc cartDocument
	err := m.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return &doc, nil
}

// mutate applies fn to the buyer's cart and writes it back if nobody else
// wrote in between, retrying otherwise.
func (m *MongoCartRepository) mutate(ctx context.Context, userID int64, fn func(doc *cartDocument) error) error {
	for attempt := 0; attempt < maxCartRetries; attempt++ {
		doc, err := m.load(ctx, userID)
		if err != nil {
			return err
		}

		fresh := doc == nil
		if fresh {
			doc = &cartDocument{UserID: userID, Items: []domain.CartLine{}}
		}
		if err := fn(doc); err != nil {
			return err
		}

		now := time.Now().UTC()
		if fresh {
			doc.Version = 1
			doc.UpdatedAt = now
			_, err := m.collection.InsertOne(ctx, doc)
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to create cart: %w", err)
			}
			return nil
		}

		res, err := m.collection.UpdateOne(ctx,
			bson.M{"user_id": userID, "version": doc.Version},
			bson.M{
				"$set": bson.M{"items": doc.Items, "updated_at": now},
				"$inc": bson.M{"version": 1},
			})
		if err != nil {
			return fmt.Errorf("failed to update cart: %w", err)
		}
		if res.MatchedCount == 1 {
			return nil
		}
	}
	return ErrTooManyRetries
}

func (m *MongoCartRepository) AddOrIncrement(ctx context.Context, userID, productID int64, delta, limit int) (*domain.CartLine, bool, error) {
	if delta <= 0 {
		return nil, false, domain.ErrInvalidQuantity
	}
	if limit <= 0 {
		return nil, false, domain.ErrStockExhausted
	}

	var result domain.CartLine
	var clamped bool
	err := m.mutate(ctx, userID, func(doc *cartDocument) error {
		for i := range doc.Items {
			if doc.Items[i].ProductID == productID {
				want := doc.Items[i].Quantity + delta
				clamped = want > limit
				doc.Items[i].Quantity = min(want, limit)
				result = doc.Items[i]
				return nil
			}
		}
		clamped = delta > limit
		result = domain.CartLine{
			ID:        uuid.NewString(),
			ProductID: productID,
			Quantity:  min(delta, limit),
			AddedAt:   time.Now().UTC().Truncate(time.Millisecond),
		}
		doc.Items = append(doc.Items, result)
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	result.UserID = userID
	return &result, clamped, nil
}

func (m *MongoCartRepository) GetLine(ctx context.Context, lineID string) (*domain.CartLine, error) {
	var doc cartDocument
	err := m.collection.FindOne(ctx, bson.M{"items.line_id": lineID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("cart line %s: %w", lineID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart line: %w", err)
	}

	for _, l := range doc.Items {
		if l.ID == lineID {
			l.UserID = doc.UserID
			return &l, nil
		}
	}
	return nil, fmt.Errorf("cart line %s: %w", lineID, domain.ErrNotFound)
}

func (m *MongoCartRepository) DeleteLine(ctx context.Context, userID int64, lineID string) error {
	res, err := m.collection.UpdateOne(ctx,
		bson.M{"user_id": userID, "items.line_id": lineID},
		bson.M{
			"$pull": bson.M{"items": bson.M{"line_id": lineID}},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
			"$inc":  bson.M{"version": 1},
		})
	if err != nil {
		return fmt.Errorf("failed to remove item: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("cart line %s: %w", lineID, domain.ErrNotFound)
	}
	return nil
}

func (m *MongoCartRepository) ListLines(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	doc, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return []domain.CartLine{}, nil
	}

	lines := make([]domain.CartLine, len(doc.Items))
	for i, l := range doc.Items {
		l.UserID = userID
		lines[i] = l
	}
	sort.SliceStable(lines, func(i, j int) bool {
		if !lines[i].AddedAt.Equal(lines[j].AddedAt) {
			return lines[i].AddedAt.Before(lines[j].AddedAt)
		}
		return lines[i].ID < lines[j].ID
	})
	return lines, nil
}

// DrainLines removes exactly the given lines in one conditional update: the
// filter requires every line to still be present at its snapshot quantity,
// so a concurrent drain or increment leaves this one matching nothing.
func (m *MongoCartRepository) DrainLines(ctx context.Context, userID int64, snaps []domain.LineSnapshot) ([]domain.CartLine, error) {
	if len(snaps) == 0 {
		return nil, nil
	}

	lineIDs := domain.SnapshotIDs(snaps)
	matchers := make(bson.A, len(snaps))
	for i, s := range snaps {
		matchers[i] = bson.M{"$elemMatch": bson.M{"line_id": s.ID, "quantity": s.Quantity}}
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.Before).
		SetProjection(bson.M{"items": 1, "user_id": 1})

	var before cartDocument
	err := m.collection.FindOneAndUpdate(ctx,
		bson.M{"user_id": userID, "items": bson.M{"$all": matchers}},
		bson.M{
			"$pull": bson.M{"items": bson.M{"line_id": bson.M{"$in": lineIDs}}},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
			"$inc":  bson.M{"version": 1},
		},
		opts,
	).Decode(&before)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrConcurrentCheckoutConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to drain cart: %w", err)
	}

	wanted := make(map[string]struct{}, len(lineIDs))
	for _, id := range lineIDs {
		wanted[id] = struct{}{}
	}
	drained := make([]domain.CartLine, 0, len(lineIDs))
	for _, l := range before.Items {
		if _, ok := wanted[l.ID]; ok {
			l.UserID = userID
			drained = append(drained, l)
		}
	}
	return drained, nil
}

// RestoreLines puts drained lines back, merging into any line for the same
// product that was added in the meantime.
func (m *MongoCartRepository) RestoreLines(ctx context.Context, userID int64, lines []domain.CartLine) error {
	if len(lines) == 0 {
		return nil
	}
	return m.mutate(ctx, userID, func(doc *cartDocument) error {
		for _, restored := range lines {
			merged := false
			for i := range doc.Items {
				if doc.Items[i].ProductID == restored.ProductID {
					doc.Items[i].Quantity += restored.Quantity
					merged = true
					break
				}
			}
			if !merged {
				doc.Items = append(doc.Items, restored)
			}
		}
		return nil
	})
}
