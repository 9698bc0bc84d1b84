package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/orderkit/cost-engine/internal/domain"
	"github.com/orderkit/cost-engine/pkg/cloudevents"
	"github.com/orderkit/cost-engine/pkg/kafka"
	"github.com/orderkit/cost-engine/pkg/outbox"
	outboxMongo "github.com/orderkit/cost-engine/pkg/outbox/mongodb"
	"github.com/orderkit/cost-engine/pkg/tenant"
)

// OrderRepository implements domain.OrderRepository
type OrderRepository struct {
	collection   *mongo.Collection
	db           *mongo.Database
	outboxRepo   *outboxMongo.Repository
	eventFactory *cloudevents.EventFactory
	tenantHelper *tenant.RepositoryHelper
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db *mongo.Database, eventFactory *cloudevents.EventFactory) (*OrderRepository, error) {
	collection := db.Collection("orders")

	outboxRepo, err := outboxMongo.NewRepository(db)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "orderId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "tenantId", Value: 1},
				{Key: "provider", Value: 1},
				{Key: "placedAt", Value: -1},
			},
		},
		{
			Keys: bson.D{
				{Key: "tenantId", Value: 1},
				{Key: "costSnapshot.commissions.ruleId", Value: 1},
			},
		},
		{
			Keys: bson.D{
				{Key: "tenantId", Value: 1},
				{Key: "costSnapshot.costs.ruleId", Value: 1},
			},
		},
	}

	_, _ = collection.Indexes().CreateMany(ctx, indexes)

	return &OrderRepository{
		collection:   collection,
		db:           db,
		outboxRepo:   outboxRepo,
		eventFactory: eventFactory,
		tenantHelper: tenant.NewRepositoryHelper(),
	}, nil
}

// Save persists an order and stages its domain events in the same
// transaction. The snapshot travels embedded in the order document, so
// a replacement is atomic by construction.
func (r *OrderRepository) Save(ctx context.Context, order *domain.Order) error {
	order.UpdatedAt = time.Now().UTC()

	session, err := r.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		opts := options.Update().SetUpsert(true)
		filter := bson.M{"orderId": order.OrderID}
		update := bson.M{"$set": order}

		if _, err := r.collection.UpdateOne(sessCtx, filter, update, opts); err != nil {
			return nil, fmt.Errorf("saving order: %w", err)
		}

		domainEvents := order.DomainEvents()
		if len(domainEvents) == 0 {
			return nil, nil
		}

		outboxEvents := make([]*outbox.Event, 0, len(domainEvents))
		for _, event := range domainEvents {
			var cloudEvent *cloudevents.CloudEvent
			switch e := event.(type) {
			case *domain.SnapshotComputedEvent:
				cloudEvent = r.eventFactory.CreateSnapshotComputedEvent(e.TenantID, &cloudevents.SnapshotComputedData{
					OrderID:          e.OrderID,
					Provider:         e.Provider,
					TotalCosts:       e.TotalCosts,
					TotalCommissions: e.TotalCommissions,
					NetRevenue:       e.NetRevenue,
					RuleIDs:          e.RuleIDs,
					ComputedAt:       e.ComputedAt,
				})
			default:
				continue
			}

			outboxEvent, err := outbox.NewEventFromCloudEvent(
				order.OrderID,
				"order",
				kafka.Topics.CostEvents,
				cloudEvent,
			)
			if err != nil {
				return nil, fmt.Errorf("staging outbox event: %w", err)
			}
			outboxEvents = append(outboxEvents, outboxEvent)
		}

		if len(outboxEvents) > 0 {
			if err := r.outboxRepo.SaveAll(sessCtx, outboxEvents); err != nil {
				return nil, fmt.Errorf("saving outbox events: %w", err)
			}
		}
		return nil, nil
	})

	return err
}

// FindByOrderID retrieves an order by its external ID
func (r *OrderRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Order, error) {
	var order domain.Order
	filter := bson.M{"orderId": orderID}
	filter = r.tenantHelper.WithTenantFilterOptional(ctx, filter)

	err := r.collection.FindOne(ctx, filter).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// FindPage retrieves a page of orders matching the filter
func (r *OrderRepository) FindPage(ctx context.Context, filter domain.OrderFilter, page domain.Pagination) ([]*domain.Order, error) {
	mongoFilter := r.buildFilter(filter)

	opts := options.Find().
		SetSort(bson.D{{Key: "placedAt", Value: -1}}).
		SetSkip(page.Skip()).
		SetLimit(page.Limit())

	return r.findMany(ctx, mongoFilter, opts)
}

// Count returns the number of orders matching the filter
func (r *OrderRepository) Count(ctx context.Context, filter domain.OrderFilter) (int64, error) {
	return r.collection.CountDocuments(ctx, r.buildFilter(filter))
}

// FindBatch retrieves up to limit orders with orderId greater than
// afterID, ascending. The cursor keys on orderId so interleaved writes
// never shift the page boundaries of a running recalculation.
func (r *OrderRepository) FindBatch(ctx context.Context, filter domain.OrderFilter, afterID string, limit int64) ([]*domain.Order, error) {
	mongoFilter := r.batchFilter(filter, afterID)

	opts := options.Find().
		SetSort(bson.D{{Key: "orderId", Value: 1}}).
		SetLimit(limit)

	return r.findMany(ctx, mongoFilter, opts)
}

func (r *OrderRepository) findMany(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.Order, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var orders []*domain.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// batchFilter layers the cursor condition over the selection filter. An
// explicit OrderIDs selection and the cursor both constrain orderId, so
// the two conditions are combined with $and.
func (r *OrderRepository) batchFilter(filter domain.OrderFilter, afterID string) bson.M {
	mongoFilter := r.buildFilter(filter)
	if afterID == "" {
		return mongoFilter
	}

	if existing, ok := mongoFilter["orderId"]; ok {
		delete(mongoFilter, "orderId")
		mongoFilter["$and"] = []bson.M{
			{"orderId": existing},
			{"orderId": bson.M{"$gt": afterID}},
		}
	} else {
		mongoFilter["orderId"] = bson.M{"$gt": afterID}
	}
	return mongoFilter
}

func (r *OrderRepository) buildFilter(filter domain.OrderFilter) bson.M {
	mongoFilter := bson.M{}
	if filter.TenantID != "" {
		mongoFilter["tenantId"] = filter.TenantID
	}
	if filter.Provider != "" {
		mongoFilter["provider"] = filter.Provider
	}
	if len(filter.OrderIDs) > 0 {
		mongoFilter["orderId"] = bson.M{"$in": filter.OrderIDs}
	}
	if len(filter.RuleIDs) > 0 {
		in := bson.M{"$in": filter.RuleIDs}
		mongoFilter["$or"] = []bson.M{
			{"costSnapshot.costs.ruleId": in},
			{"costSnapshot.commissions.ruleId": in},
			{"costSnapshot.taxes.ruleId": in},
			{"costSnapshot.paymentMethods.ruleId": in},
		}
	}
	if filter.HasSnapshot != nil {
		mongoFilter["costSnapshot"] = bson.M{"$exists": *filter.HasSnapshot}
	}
	return mongoFilter
}

// ProductRepository implements domain.ProductRepository
type ProductRepository struct {
	collection   *mongo.Collection
	tenantHelper *tenant.RepositoryHelper
}

// NewProductRepository creates a new ProductRepository
func NewProductRepository(db *mongo.Database) *ProductRepository {
	collection := db.Collection("products")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "productId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "tenantId", Value: 1},
				{Key: "category", Value: 1},
			},
		},
	}

	_, _ = collection.Indexes().CreateMany(ctx, indexes)

	return &ProductRepository{
		collection:   collection,
		tenantHelper: tenant.NewRepositoryHelper(),
	}
}

// Save persists a product
func (r *ProductRepository) Save(ctx context.Context, product *domain.Product) error {
	product.UpdatedAt = time.Now().UTC()

	opts := options.Update().SetUpsert(true)
	filter := bson.M{"productId": product.ProductID}
	update := bson.M{"$set": product}

	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// FindByProductID retrieves a product by ID
func (r *ProductRepository) FindByProductID(ctx context.Context, productID string) (*domain.Product, error) {
	var product domain.Product
	filter := bson.M{"productId": productID}
	filter = r.tenantHelper.WithTenantFilterOptional(ctx, filter)

	err := r.collection.FindOne(ctx, filter).Decode(&product)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

// FindByProductIDs retrieves products by ID in one round trip
func (r *ProductRepository) FindByProductIDs(ctx context.Context, tenantID string, productIDs []string) ([]*domain.Product, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	filter := bson.M{
		"tenantId":  tenantID,
		"productId": bson.M{"$in": productIDs},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var products []*domain.Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// IngredientRepository implements domain.IngredientRepository
type IngredientRepository struct {
	collection *mongo.Collection
}

// NewIngredientRepository creates a new IngredientRepository
func NewIngredientRepository(db *mongo.Database) *IngredientRepository {
	collection := db.Collection("ingredients")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "ingredientId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "tenantId", Value: 1}},
		},
	}

	_, _ = collection.Indexes().CreateMany(ctx, indexes)

	return &IngredientRepository{collection: collection}
}

// Save persists an ingredient
func (r *IngredientRepository) Save(ctx context.Context, ingredient *domain.Ingredient) error {
	ingredient.UpdatedAt = time.Now().UTC()

	opts := options.Update().SetUpsert(true)
	filter := bson.M{"ingredientId": ingredient.IngredientID}
	update := bson.M{"$set": ingredient}

	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// FindByIngredientIDs retrieves ingredients by ID in one round trip
func (r *IngredientRepository) FindByIngredientIDs(ctx context.Context, tenantID string, ingredientIDs []string) ([]*domain.Ingredient, error) {
	if len(ingredientIDs) == 0 {
		return nil, nil
	}

	filter := bson.M{
		"tenantId":     tenantID,
		"ingredientId": bson.M{"$in": ingredientIDs},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var ingredients []*domain.Ingredient
	if err := cursor.All(ctx, &ingredients); err != nil {
		return nil, err
	}
	return ingredients, nil
}

// MappingRepository implements domain.MappingRepository
type MappingRepository struct {
	collection *mongo.Collection
}

// NewMappingRepository creates a new MappingRepository
func NewMappingRepository(db *mongo.Database) *MappingRepository {
	collection := db.Collection("item_mappings")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "tenantId", Value: 1},
				{Key: "key", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "mappingId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, _ = collection.Indexes().CreateMany(ctx, indexes)

	return &MappingRepository{collection: collection}
}

// Save persists a mapping, keyed by its tenant-scoped lookup key
func (r *MappingRepository) Save(ctx context.Context, mapping *domain.ItemMapping) error {
	mapping.UpdatedAt = time.Now().UTC()

	opts := options.Update().SetUpsert(true)
	filter := bson.M{
		"tenantId": mapping.TenantID,
		"key":      mapping.Key,
	}
	update := bson.M{"$set": mapping}

	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// FindByKeys retrieves mappings for a set of lookup keys in one round trip
func (r *MappingRepository) FindByKeys(ctx context.Context, tenantID string, keys []string) ([]*domain.ItemMapping, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	filter := bson.M{
		"tenantId": tenantID,
		"key":      bson.M{"$in": keys},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var mappings []*domain.ItemMapping
	if err := cursor.All(ctx, &mappings); err != nil {
		return nil, err
	}
	return mappings, nil
}

// RuleRepository implements domain.RuleRepository
type RuleRepository struct {
	collection   *mongo.Collection
	tenantHelper *tenant.RepositoryHelper
}

// NewRuleRepository creates a new RuleRepository
func NewRuleRepository(db *mongo.Database) *RuleRepository {
	collection := db.Collection("fee_rules")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "ruleId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "tenantId", Value: 1},
				{Key: "active", Value: 1},
				{Key: "deletedAt", Value: 1},
			},
		},
	}

	_, _ = collection.Indexes().CreateMany(ctx, indexes)

	return &RuleRepository{
		collection:   collection,
		tenantHelper: tenant.NewRepositoryHelper(),
	}
}

// Save persists a fee rule. Soft deletion is a save with DeletedAt set,
// the document is never removed.
func (r *RuleRepository) Save(ctx context.Context, rule *domain.FeeRule) error {
	rule.UpdatedAt = time.Now().UTC()

	opts := options.Update().SetUpsert(true)
	filter := bson.M{"ruleId": rule.RuleID}
	update := bson.M{"$set": rule}

	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// FindByRuleID retrieves a rule by ID, including soft-deleted ones
func (r *RuleRepository) FindByRuleID(ctx context.Context, ruleID string) (*domain.FeeRule, error) {
	var rule domain.FeeRule
	filter := bson.M{"ruleId": ruleID}
	filter = r.tenantHelper.WithTenantFilterOptional(ctx, filter)

	err := r.collection.FindOne(ctx, filter).Decode(&rule)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

// FindLive retrieves active, non-deleted rules for a tenant
func (r *RuleRepository) FindLive(ctx context.Context, tenantID string) ([]*domain.FeeRule, error) {
	filter := bson.M{
		"tenantId":  tenantID,
		"active":    true,
		"deletedAt": bson.M{"$exists": false},
	}

	opts := options.Find().SetSort(bson.D{{Key: "ruleId", Value: 1}})
	return r.findMany(ctx, filter, opts)
}

// FindAll retrieves every rule for a tenant
func (r *RuleRepository) FindAll(ctx context.Context, tenantID string, includeDeleted bool) ([]*domain.FeeRule, error) {
	filter := bson.M{"tenantId": tenantID}
	if !includeDeleted {
		filter["deletedAt"] = bson.M{"$exists": false}
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return r.findMany(ctx, filter, opts)
}

func (r *RuleRepository) findMany(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.FeeRule, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rules []*domain.FeeRule
	if err := cursor.All(ctx, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// AllocationRepository implements domain.AllocationRepository
type AllocationRepository struct {
	collection *mongo.Collection
	db         *mongo.Database
}

// NewAllocationRepository creates a new AllocationRepository
func NewAllocationRepository(db *mongo.Database) *AllocationRepository {
	collection := db.Collection("allocations")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "orderId", Value: 1},
				{Key: "itemId", Value: 1},
			},
		},
		{
			Keys:    bson.D{{Key: "allocationId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, _ = collection.Indexes().CreateMany(ctx, indexes)

	return &AllocationRepository{
		collection: collection,
		db:         db,
	}
}

// FindByOrderID retrieves all allocations of an order
func (r *AllocationRepository) FindByOrderID(ctx context.Context, orderID string) ([]*domain.Allocation, error) {
	filter := bson.M{"orderId": orderID}
	opts := options.Find().SetSort(bson.D{
		{Key: "itemId", Value: 1},
		{Key: "createdAt", Value: 1},
	})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var allocations []*domain.Allocation
	if err := cursor.All(ctx, &allocations); err != nil {
		return nil, err
	}
	return allocations, nil
}

// ReplaceForItem swaps the item's allocation set inside a transaction.
// A failed replacement leaves the stored allocations untouched.
func (r *AllocationRepository) ReplaceForItem(ctx context.Context, orderID, itemID string, allocations []*domain.Allocation) error {
	session, err := r.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		filter := bson.M{"orderId": orderID, "itemId": itemID}
		if _, err := r.collection.DeleteMany(sessCtx, filter); err != nil {
			return nil, fmt.Errorf("deleting previous allocations: %w", err)
		}

		if len(allocations) == 0 {
			return nil, nil
		}

		docs := make([]interface{}, len(allocations))
		for i, a := range allocations {
			docs[i] = a
		}
		if _, err := r.collection.InsertMany(sessCtx, docs); err != nil {
			return nil, fmt.Errorf("inserting allocations: %w", err)
		}
		return nil, nil
	})

	return err
}

// DeleteByOrderID removes all allocations of an order
func (r *AllocationRepository) DeleteByOrderID(ctx context.Context, orderID string) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"orderId": orderID})
	return err
}

// ProgressRepository implements domain.ProgressRepository
type ProgressRepository struct {
	collection   *mongo.Collection
	tenantHelper *tenant.RepositoryHelper
}

// NewProgressRepository creates a new ProgressRepository
func NewProgressRepository(db *mongo.Database) *ProgressRepository {
	collection := db.Collection("recalculation_runs")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "runId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "tenantId", Value: 1},
				{Key: "startedAt", Value: -1},
			},
		},
	}

	_, _ = collection.Indexes().CreateMany(ctx, indexes)

	return &ProgressRepository{
		collection:   collection,
		tenantHelper: tenant.NewRepositoryHelper(),
	}
}

// Save persists run progress
func (r *ProgressRepository) Save(ctx context.Context, progress *domain.RunProgress) error {
	progress.UpdatedAt = time.Now().UTC()

	opts := options.Update().SetUpsert(true)
	filter := bson.M{"runId": progress.RunID}
	update := bson.M{"$set": progress}

	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// FindByRunID retrieves run progress by ID
func (r *ProgressRepository) FindByRunID(ctx context.Context, runID string) (*domain.RunProgress, error) {
	var progress domain.RunProgress
	filter := bson.M{"runId": runID}
	filter = r.tenantHelper.WithTenantFilterOptional(ctx, filter)

	err := r.collection.FindOne(ctx, filter).Decode(&progress)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &progress, nil
}

// FindRecent retrieves the most recent runs for a tenant
func (r *ProgressRepository) FindRecent(ctx context.Context, tenantID string, page domain.Pagination) ([]*domain.RunProgress, error) {
	filter := bson.M{"tenantId": tenantID}

	opts := options.Find().
		SetSort(bson.D{{Key: "startedAt", Value: -1}}).
		SetSkip(page.Skip()).
		SetLimit(page.Limit())

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var runs []*domain.RunProgress
	if err := cursor.All(ctx, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}
