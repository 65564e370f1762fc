// Package mongodb is a keygate.AccountStore on MongoDB.
package mongodb

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/plextask/keygate"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// DefaultDBName is the database used when Open gets an empty name.
	DefaultDBName = "keygate"
	// DefaultCollectionName holds one document per account.
	DefaultCollectionName = "accounts"

	nicknameIndex = "nickname_uniq"
	emailIndex    = "email_uniq"
)

// account is the stored document. The account ID is the document _id.
type account struct {
	ID           string    `bson:"_id"`
	Nickname     string    `bson:"nickname"`
	DisplayName  string    `bson:"dname"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"pwd"`
	Created      time.Time `bson:"c"`
}

func toDoc(a keygate.Account) account {
	return account{
		ID:           a.ID,
		Nickname:     a.Nickname,
		DisplayName:  a.DisplayName,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		Created:      a.CreatedAt,
	}
}

func (d account) toAccount() keygate.Account {
	return keygate.Account{
		ID:           d.ID,
		Nickname:     d.Nickname,
		DisplayName:  d.DisplayName,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.Created,
	}
}

// Store implements keygate.AccountStore on a single collection.
// It's safe to use it concurrently from multiple goroutines.
type Store struct {
	c *mongo.Collection
}

// NewStore wraps c. Call EnsureIndexes once before relying on uniqueness.
func NewStore(c *mongo.Collection) *Store {
	if c == nil {
		panic("collection must be provided")
	}
	return &Store{c: c}
}

// Open connects to uri and returns a store on dbName.accounts along with the
// client, which the caller disconnects.
func Open(ctx context.Context, uri, dbName string) (*Store, *mongo.Client, error) {
	if dbName == "" {
		dbName = DefaultDBName
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, err
	}
	return NewStore(client.Database(dbName).Collection(DefaultCollectionName)), client, nil
}

// EnsureIndexes creates the unique nickname and email indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "nickname", Value: 1}},
			Options: options.Index().SetName(nicknameIndex).SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName(emailIndex).SetUnique(true),
		},
	})
	return err
}

func (s *Store) FindByEmail(ctx context.Context, email string) (keygate.Account, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *Store) FindByNickname(ctx context.Context, nickname string) (keygate.Account, error) {
	return s.findOne(ctx, bson.M{"nickname": nickname})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (keygate.Account, error) {
	var doc account
	err := s.c.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return keygate.Account{}, keygate.ErrAccountNotFound
	}
	if err != nil {
		return keygate.Account{}, err
	}
	return doc.toAccount(), nil
}

func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, bson.M{"email": email})
}

func (s *Store) ExistsByNickname(ctx context.Context, nickname string) (bool, error) {
	return s.exists(ctx, bson.M{"nickname": nickname})
}

func (s *Store) exists(ctx context.Context, filter bson.M) (bool, error) {
	n, err := s.c.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Create(ctx context.Context, a keygate.Account) (keygate.Account, error) {
	if _, err := s.c.InsertOne(ctx, toDoc(a)); err != nil {
		return keygate.Account{}, translate(err)
	}
	return a, nil
}

func (s *Store) Save(ctx context.Context, a keygate.Account) error {
	doc := toDoc(a)
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$set": bson.M{
		"nickname": doc.Nickname,
		"dname":    doc.DisplayName,
		"email":    doc.Email,
		"pwd":      doc.PasswordHash,
	}})
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return keygate.ErrAccountNotFound
	}
	return nil
}

// translate maps a duplicate key error to the field whose index it hit.
func translate(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return err
	}
	if strings.Contains(err.Error(), emailIndex) {
		return &keygate.ConflictError{Field: keygate.FieldEmail}
	}
	return &keygate.ConflictError{Field: keygate.FieldNickname}
}
