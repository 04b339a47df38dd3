package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ordercore/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

const (
	metadataSK   = "METADATA"
	ownerIndex   = "GSI1"
	gsiTimestamp = "2006-01-02T15:04:05.000000000Z"
)

// DynamoConfig locates the two tables used by DynamoStore.
type DynamoConfig struct {
	Region        string
	Endpoint      string
	ProductsTable string
	OrdersTable   string
}

// dynamoAPI is the subset of *dynamodb.Client the store calls.
type dynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore is a Backend on two DynamoDB tables. Orders carry a GSI1 entry
// keyed by owner so listing is a single index query.
type DynamoStore struct {
	client        dynamoAPI
	productsTable string
	ordersTable   string
}

var _ Backend = (*DynamoStore)(nil)

type productRecord struct {
	PK        string    `dynamodbav:"PK"`
	SK        string    `dynamodbav:"SK"`
	ID        string    `dynamodbav:"id"`
	Name      string    `dynamodbav:"name"`
	Price     string    `dynamodbav:"price"`
	Stock     int       `dynamodbav:"stock"`
	Category  string    `dynamodbav:"category"`
	IsActive  bool      `dynamodbav:"isActive"`
	CreatedAt time.Time `dynamodbav:"createdAt"`
	UpdatedAt time.Time `dynamodbav:"updatedAt"`
}

type lineRecord struct {
	ProductID string `dynamodbav:"productId"`
	Name      string `dynamodbav:"name"`
	UnitPrice string `dynamodbav:"unitPrice"`
	Quantity  int    `dynamodbav:"quantity"`
	LineTotal string `dynamodbav:"lineTotal"`
}

type orderRecord struct {
	PK              string                 `dynamodbav:"PK"`
	SK              string                 `dynamodbav:"SK"`
	GSI1PK          string                 `dynamodbav:"GSI1PK"`
	GSI1SK          string                 `dynamodbav:"GSI1SK"`
	ID              string                 `dynamodbav:"id"`
	OwnerID         string                 `dynamodbav:"ownerId"`
	Items           []lineRecord           `dynamodbav:"items"`
	Subtotal        string                 `dynamodbav:"subtotal"`
	ShippingCost    string                 `dynamodbav:"shippingCost"`
	Tax             string                 `dynamodbav:"tax"`
	Total           string                 `dynamodbav:"total"`
	ShippingAddress domain.ShippingAddress `dynamodbav:"shippingAddress"`
	Status          string                 `dynamodbav:"status"`
	CreatedAt       time.Time              `dynamodbav:"createdAt"`
	UpdatedAt       time.Time              `dynamodbav:"updatedAt"`
}

// NewDynamoStore loads the default AWS config for cfg.Region. A non-empty
// Endpoint points the client at a local DynamoDB.
func NewDynamoStore(ctx context.Context, cfg DynamoConfig) (*DynamoStore, error) {
	if cfg.ProductsTable == "" || cfg.OrdersTable == "" {
		return nil, errors.New("dynamodb: products and orders table names are required")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newDynamoStore(client, cfg), nil
}

func newDynamoStore(client dynamoAPI, cfg DynamoConfig) *DynamoStore {
	return &DynamoStore{client: client, productsTable: cfg.ProductsTable, ordersTable: cfg.OrdersTable}
}

func (s *DynamoStore) Close() error { return nil }

func productKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "PRODUCT#" + id},
		"SK": &types.AttributeValueMemberS{Value: metadataSK},
	}
}

func orderKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "ORDER#" + id},
		"SK": &types.AttributeValueMemberS{Value: metadataSK},
	}
}

// ownerSortKey is fixed width so lexical order matches creation order.
func ownerSortKey(o domain.Order) string {
	return "ORDER#" + o.CreatedAt.UTC().Format(gsiTimestamp) + "#" + o.ID
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func qty(n int) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.Itoa(n)}
}

func timeValue(t time.Time) (types.AttributeValue, error) {
	return attributevalue.Marshal(t.UTC())
}

func toProductRecord(p domain.Product) productRecord {
	return productRecord{
		PK:        "PRODUCT#" + p.ID,
		SK:        metadataSK,
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price.StringFixed(2),
		Stock:     p.Stock,
		Category:  p.Category,
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt.UTC(),
		UpdatedAt: p.UpdatedAt.UTC(),
	}
}

func (r productRecord) product() (domain.Product, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %s: bad price %q: %w", r.ID, r.Price, err)
	}
	return domain.Product{
		ID:        r.ID,
		Name:      r.Name,
		Price:     price,
		Stock:     r.Stock,
		Category:  r.Category,
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}, nil
}

func toOrderRecord(o domain.Order) orderRecord {
	items := make([]lineRecord, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, lineRecord{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice.StringFixed(2),
			Quantity:  it.Quantity,
			LineTotal: it.LineTotal.StringFixed(2),
		})
	}
	return orderRecord{
		PK:              "ORDER#" + o.ID,
		SK:              metadataSK,
		GSI1PK:          "USER#" + o.OwnerID,
		GSI1SK:          ownerSortKey(o),
		ID:              o.ID,
		OwnerID:         o.OwnerID,
		Items:           items,
		Subtotal:        o.Subtotal.StringFixed(2),
		ShippingCost:    o.ShippingCost.StringFixed(2),
		Tax:             o.Tax.StringFixed(2),
		Total:           o.Total.StringFixed(2),
		ShippingAddress: o.ShippingAddress,
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt.UTC(),
		UpdatedAt:       o.UpdatedAt.UTC(),
	}
}

func (r orderRecord) order() (domain.Order, error) {
	o := domain.Order{
		ID:              r.ID,
		OwnerID:         r.OwnerID,
		Items:           make([]domain.OrderLineItem, 0, len(r.Items)),
		ShippingAddress: r.ShippingAddress,
		Status:          domain.OrderStatus(r.Status),
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
	parse := func(s string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("order %s: bad amount %q: %w", r.ID, s, err)
		}
		return d, nil
	}
	for _, it := range r.Items {
		unit, err := parse(it.UnitPrice)
		if err != nil {
			return domain.Order{}, err
		}
		line, err := parse(it.LineTotal)
		if err != nil {
			return domain.Order{}, err
		}
		o.Items = append(o.Items, domain.OrderLineItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: unit,
			Quantity:  it.Quantity,
			LineTotal: line,
		})
	}
	var err error
	if o.Subtotal, err = parse(r.Subtotal); err != nil {
		return domain.Order{}, err
	}
	if o.ShippingCost, err = parse(r.ShippingCost); err != nil {
		return domain.Order{}, err
	}
	if o.Tax, err = parse(r.Tax); err != nil {
		return domain.Order{}, err
	}
	if o.Total, err = parse(r.Total); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (s *DynamoStore) getProductRecord(ctx context.Context, id string) (*productRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.productsTable),
		Key:            productKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec productRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal product: %w", err)
	}
	return &rec, nil
}

func (s *DynamoStore) Create(ctx context.Context, product domain.Product) error {
	if err := validateNewProduct(product); err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(toProductRecord(stamp(product)))
	if err != nil {
		return fmt.Errorf("failed to marshal product: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.productsTable),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if isConditionFailed(err) {
		return domain.NewDuplicateProductError(product.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to put product: %w", err)
	}
	return nil
}

func (s *DynamoStore) Get(ctx context.Context, id string) (domain.Product, error) {
	rec, err := s.getProductRecord(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if rec == nil {
		return domain.Product{}, domain.NewProductNotFoundError(id)
	}
	return rec.product()
}

func (s *DynamoStore) GetActiveProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if !p.IsActive {
		return domain.Product{}, domain.NewProductNotFoundError(id)
	}
	return p, nil
}

func (s *DynamoStore) Update(ctx context.Context, id string, product domain.Product) error {
	if err := domain.ValidateProduct(product); err != nil {
		return err
	}
	updated, err := timeValue(now())
	if err != nil {
		return err
	}
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.productsTable),
		Key:                 productKey(id),
		UpdateExpression:    aws.String("SET #n = :n, #p = :p, #c = :c, #a = :a, #u = :u"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeNames: map[string]string{
			"#n": "name", "#p": "price", "#c": "category", "#a": "isActive", "#u": "updatedAt",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":n": &types.AttributeValueMemberS{Value: product.Name},
			":p": &types.AttributeValueMemberS{Value: product.Price.StringFixed(2)},
			":c": &types.AttributeValueMemberS{Value: product.Category},
			":a": &types.AttributeValueMemberBOOL{Value: product.IsActive},
			":u": updated,
		},
	})
	if isConditionFailed(err) {
		return domain.NewProductNotFoundError(id)
	}
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return nil
}

// SetStock overwrites stock only while updatedAt still holds readAt; a failed
// condition is resolved into not-found or stale with a consistent read.
func (s *DynamoStore) SetStock(ctx context.Context, id string, stock int, readAt time.Time) error {
	if err := validateStock(stock); err != nil {
		return err
	}
	updated, err := timeValue(now())
	if err != nil {
		return err
	}
	read, err := timeValue(readAt)
	if err != nil {
		return err
	}
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.productsTable),
		Key:                 productKey(id),
		UpdateExpression:    aws.String("SET stock = :st, updatedAt = :u"),
		ConditionExpression: aws.String("attribute_exists(PK) AND updatedAt = :r"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":st": qty(stock),
			":u":  updated,
			":r":  read,
		},
	})
	if err == nil {
		return nil
	}
	if !isConditionFailed(err) {
		return fmt.Errorf("failed to set stock: %w", err)
	}

	rec, err := s.getProductRecord(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return domain.NewProductNotFoundError(id)
	}
	return domain.NewStaleProductError(id)
}

func (s *DynamoStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.productsTable),
		Key:                 productKey(id),
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if isConditionFailed(err) {
		return domain.NewProductNotFoundError(id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return nil
}

func (s *DynamoStore) List(ctx context.Context, filter domain.ListFilter) ([]domain.Product, error) {
	var all []domain.Product
	pages := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{TableName: aws.String(s.productsTable)})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan products: %w", err)
		}
		var recs []productRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &recs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal products: %w", err)
		}
		for _, r := range recs {
			p, err := r.product()
			if err != nil {
				return nil, err
			}
			all = append(all, p)
		}
	}
	return filterProducts(all, filter), nil
}

func (s *DynamoStore) BulkImport(ctx context.Context, products []domain.Product) error {
	return importProducts(ctx, products, s.Create)
}

// ReserveStock decrements with a condition expression; when the condition
// fails a consistent read tells a missing product from a short one.
func (s *DynamoStore) ReserveStock(ctx context.Context, id string, quantity int) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}
	updated, err := timeValue(now())
	if err != nil {
		return err
	}
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.productsTable),
		Key:                 productKey(id),
		UpdateExpression:    aws.String("SET stock = stock - :q, updatedAt = :u"),
		ConditionExpression: aws.String("attribute_exists(PK) AND isActive = :true AND stock >= :q"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":q":    qty(quantity),
			":u":    updated,
			":true": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err == nil {
		return nil
	}
	if !isConditionFailed(err) {
		return fmt.Errorf("failed to reserve stock: %w", err)
	}

	rec, err := s.getProductRecord(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil || !rec.IsActive {
		return domain.NewProductNotFoundError(id)
	}
	return domain.NewInsufficientStockError(id, quantity, rec.Stock)
}

func (s *DynamoStore) ReleaseStock(ctx context.Context, id string, quantity int) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}
	updated, err := timeValue(now())
	if err != nil {
		return err
	}
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.productsTable),
		Key:                 productKey(id),
		UpdateExpression:    aws.String("SET stock = stock + :q, updatedAt = :u"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":q": qty(quantity),
			":u": updated,
		},
	})
	if isConditionFailed(err) {
		return domain.NewProductNotFoundError(id)
	}
	if err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}
	return nil
}

func (s *DynamoStore) CreateOrder(ctx context.Context, order domain.Order) error {
	av, err := attributevalue.MarshalMap(toOrderRecord(order))
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.ordersTable),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to put order: %w", err)
	}
	return nil
}

func (s *DynamoStore) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.ordersTable),
		Key:            orderKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("failed to get order: %w", err)
	}
	if len(out.Item) == 0 {
		return domain.Order{}, domain.NewOrderNotFoundError(id)
	}
	var rec orderRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return domain.Order{}, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return rec.order()
}

func (s *DynamoStore) ownerQuery(ownerID string) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:              aws.String(s.ordersTable),
		IndexName:              aws.String(ownerIndex),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "USER#" + ownerID},
		},
	}
}

// ListOrdersByOwner counts the owner's partition, then walks it newest first
// skipping offset entries.
func (s *DynamoStore) ListOrdersByOwner(ctx context.Context, ownerID string, offset, limit int) ([]domain.Order, int, error) {
	countIn := s.ownerQuery(ownerID)
	countIn.Select = types.SelectCount
	total := 0
	counter := dynamodb.NewQueryPaginator(s.client, countIn)
	for counter.HasMorePages() {
		page, err := counter.NextPage(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to count orders: %w", err)
		}
		total += int(page.Count)
	}

	out := []domain.Order{}
	if offset < 0 || offset >= total || limit <= 0 {
		return out, total, nil
	}

	listIn := s.ownerQuery(ownerID)
	listIn.ScanIndexForward = aws.Bool(false)
	skipped := 0
	pages := dynamodb.NewQueryPaginator(s.client, listIn)
	for pages.HasMorePages() && len(out) < limit {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to query orders: %w", err)
		}
		for _, item := range page.Items {
			if skipped < offset {
				skipped++
				continue
			}
			if len(out) == limit {
				break
			}
			var rec orderRecord
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return nil, 0, fmt.Errorf("failed to unmarshal order: %w", err)
			}
			o, err := rec.order()
			if err != nil {
				return nil, 0, err
			}
			out = append(out, o)
		}
	}
	return out, total, nil
}

func (s *DynamoStore) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus, updatedAt time.Time) error {
	updated, err := timeValue(updatedAt)
	if err != nil {
		return err
	}
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.ordersTable),
		Key:                      orderKey(id),
		UpdateExpression:         aws.String("SET #s = :s, updatedAt = :u"),
		ConditionExpression:      aws.String("attribute_exists(PK)"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberS{Value: string(status)},
			":u": updated,
		},
	})
	if isConditionFailed(err) {
		return domain.NewOrderNotFoundError(id)
	}
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}
