/*
Package mongo provides a MongoDB-backed billing.Store.

DOCUMENT SHAPE (collection "users"):
  {
    _id:          <user id>,
    balance:      Decimal128,
    transactions: [ {id, type, amount, date, paymentId, messageSid}, ... ]
  }

Apply is one findOneAndUpdate carrying $inc on balance and $push on
transactions, so the server applies both field operations in a single
document write. A floored debit adds balance >= floor - delta to the filter.
*/
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/voice-bridge/billing"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "users"

// Store implements billing.Store on one collection.
type Store struct {
	client *mongo.Client
	users  *mongo.Collection
}

type accountDoc struct {
	ID           string               `bson:"_id"`
	Balance      primitive.Decimal128 `bson:"balance"`
	Transactions []entryDoc           `bson:"transactions"`
}

type entryDoc struct {
	ID         string               `bson:"id"`
	Type       string               `bson:"type"`
	Amount     primitive.Decimal128 `bson:"amount"`
	Date       time.Time            `bson:"date"`
	PaymentID  string               `bson:"paymentId,omitempty"`
	MessageSID string               `bson:"messageSid,omitempty"`
}

// New connects to uri and uses database.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("unable to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("unable to ping mongo: %w", err)
	}
	return &Store{client: client, users: client.Database(database).Collection(collectionName)}, nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes the collection. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	return s.users.Drop(ctx)
}

func (s *Store) GetAccount(ctx context.Context, userID string) (*billing.Account, error) {
	var doc accountDoc
	err := s.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, billing.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", userID, err)
	}
	return fromDoc(doc)
}

func (s *Store) Apply(ctx context.Context, m billing.Mutation) (decimal.Decimal, error) {
	delta, err := toDecimal128(m.Delta)
	if err != nil {
		return decimal.Zero, err
	}
	entry, err := toEntryDoc(m.Entry)
	if err != nil {
		return decimal.Zero, err
	}

	filter := bson.M{"_id": m.UserID}
	if m.Floor != nil {
		least, err := toDecimal128(m.Floor.Sub(m.Delta))
		if err != nil {
			return decimal.Zero, err
		}
		filter["balance"] = bson.M{"$gte": least}
	}
	update := bson.M{
		"$inc":  bson.M{"balance": delta},
		"$push": bson.M{"transactions": entry},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"balance": 1})

	var doc accountDoc
	err = s.users.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		current, gerr := s.GetAccount(ctx, m.UserID)
		if gerr != nil {
			return decimal.Zero, gerr
		}
		return decimal.Zero, m.Rejection(current.Balance)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("update user %s: %w", m.UserID, err)
	}
	return fromDecimal128(doc.Balance)
}

func (s *Store) CreateAccount(ctx context.Context, acc billing.Account) error {
	doc, err := toDoc(acc)
	if err != nil {
		return err
	}
	_, err = s.users.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return billing.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("insert user %s: %w", acc.ID, err)
	}
	return nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]billing.Account, error) {
	cur, err := s.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	var docs []accountDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}

	accounts := make([]billing.Account, 0, len(docs))
	for _, d := range docs {
		acc, err := fromDoc(d)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acc)
	}
	return accounts, nil
}

// =============================================================================
// Conversion
// =============================================================================

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("decimal128 %s: %w", d.String(), err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("decimal128 %s: %w", v.String(), err)
	}
	return d, nil
}

func toEntryDoc(e billing.Entry) (entryDoc, error) {
	amount, err := toDecimal128(e.Amount)
	if err != nil {
		return entryDoc{}, err
	}
	return entryDoc{
		ID:         e.ID,
		Type:       string(e.Type),
		Amount:     amount,
		Date:       e.Date.UTC(),
		PaymentID:  e.PaymentID,
		MessageSID: e.MessageSID,
	}, nil
}

func toDoc(acc billing.Account) (accountDoc, error) {
	balance, err := toDecimal128(acc.Balance)
	if err != nil {
		return accountDoc{}, err
	}
	doc := accountDoc{ID: acc.ID, Balance: balance, Transactions: []entryDoc{}}
	for _, e := range acc.Transactions {
		ed, err := toEntryDoc(e)
		if err != nil {
			return accountDoc{}, err
		}
		doc.Transactions = append(doc.Transactions, ed)
	}
	return doc, nil
}

func fromDoc(doc accountDoc) (*billing.Account, error) {
	balance, err := fromDecimal128(doc.Balance)
	if err != nil {
		return nil, err
	}
	acc := &billing.Account{ID: doc.ID, Balance: balance}
	for _, ed := range doc.Transactions {
		amount, err := fromDecimal128(ed.Amount)
		if err != nil {
			return nil, err
		}
		acc.Transactions = append(acc.Transactions, billing.Entry{
			ID:         ed.ID,
			Type:       billing.EntryType(ed.Type),
			Amount:     amount,
			Date:       ed.Date.UTC(),
			PaymentID:  ed.PaymentID,
			MessageSID: ed.MessageSID,
		})
	}
	return acc, nil
}
