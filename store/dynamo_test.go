package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"ordercore/domain"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo answers single calls with canned results and records inputs.
type fakeDynamo struct {
	getItem    map[string]types.AttributeValue
	updateErr  error
	putErr     error
	lastUpdate *dynamodb.UpdateItemInput
	lastPut    *dynamodb.PutItemInput
	queryPages []*dynamodb.QueryOutput
	queries    int
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.getItem}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPut = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.lastUpdate = in
	return &dynamodb.UpdateItemOutput{}, f.updateErr
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if in.Select == types.SelectCount {
		var n int32
		for _, p := range f.queryPages {
			n += int32(len(p.Items))
		}
		return &dynamodb.QueryOutput{Count: n}, nil
	}
	if f.queries >= len(f.queryPages) {
		return &dynamodb.QueryOutput{}, nil
	}
	page := f.queryPages[f.queries]
	f.queries++
	return page, nil
}

func (f *fakeDynamo) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return &dynamodb.ScanOutput{}, nil
}

func newFakeDynamoStore(f *fakeDynamo) *DynamoStore {
	return newDynamoStore(f, DynamoConfig{ProductsTable: "products", OrdersTable: "orders"})
}

func marshalProduct(t *testing.T, p domain.Product) map[string]types.AttributeValue {
	av, err := attributevalue.MarshalMap(toProductRecord(p))
	require.NoError(t, err)
	return av
}

func TestDynamoStore_ReserveClassifiesConditionFailure(t *testing.T) {
	ctx := context.Background()
	ccf := &types.ConditionalCheckFailedException{Message: strPtr("condition failed")}

	f := &fakeDynamo{updateErr: ccf, getItem: marshalProduct(t, product("p1", "Pen", "1.00", 2, ""))}
	err := newFakeDynamoStore(f).ReserveStock(ctx, "p1", 3)
	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 2, insufficient.Available)
	assert.Equal(t, "attribute_exists(PK) AND isActive = :true AND stock >= :q", *f.lastUpdate.ConditionExpression)

	f = &fakeDynamo{updateErr: ccf}
	assert.True(t, domain.IsProductNotFoundError(newFakeDynamoStore(f).ReserveStock(ctx, "p1", 1)))

	off := product("p1", "Pen", "1.00", 9, "")
	off.IsActive = false
	f = &fakeDynamo{updateErr: ccf, getItem: marshalProduct(t, off)}
	assert.True(t, domain.IsProductNotFoundError(newFakeDynamoStore(f).ReserveStock(ctx, "p1", 1)))

	f = &fakeDynamo{updateErr: errors.New("throttled")}
	err = newFakeDynamoStore(f).ReserveStock(ctx, "p1", 1)
	require.Error(t, err)
	assert.False(t, domain.IsInsufficientStockError(err))
}

func TestDynamoStore_CreateDuplicate(t *testing.T) {
	f := &fakeDynamo{putErr: &types.ConditionalCheckFailedException{}}
	err := newFakeDynamoStore(f).Create(context.Background(), product("p1", "Pen", "1.00", 1, ""))
	assert.True(t, domain.IsDuplicateProductError(err))
	assert.Equal(t, "attribute_not_exists(PK)", *f.lastPut.ConditionExpression)
}

func TestDynamoStore_RecordsRoundTrip(t *testing.T) {
	created := time.Date(2025, 5, 6, 7, 8, 9, 123, time.UTC)
	o := testOrder("01JABC", "u1", created)

	av, err := attributevalue.MarshalMap(toOrderRecord(o))
	require.NoError(t, err)
	var rec orderRecord
	require.NoError(t, attributevalue.UnmarshalMap(av, &rec))
	got, err := rec.order()
	require.NoError(t, err)

	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, o.ShippingAddress, got.ShippingAddress)
	assert.True(t, got.Total.Equal(o.Total))
	assert.True(t, got.Items[0].LineTotal.Equal(o.Items[0].LineTotal))
	assert.True(t, got.CreatedAt.Equal(created))
	assert.Equal(t, "USER#u1", rec.GSI1PK)
	assert.Equal(t, "ORDER#2025-05-06T07:08:09.000000123Z#01JABC", rec.GSI1SK)
}

func TestDynamoStore_ListOrdersSkipsOffset(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var items []map[string]types.AttributeValue
	for _, id := range []string{"o3", "o2", "o1"} {
		av, err := attributevalue.MarshalMap(toOrderRecord(testOrder(id, "u1", base)))
		require.NoError(t, err)
		items = append(items, av)
	}
	f := &fakeDynamo{queryPages: []*dynamodb.QueryOutput{{Items: items}}}

	page, total, err := newFakeDynamoStore(f).ListOrdersByOwner(context.Background(), "u1", 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "o2", page[0].ID)
	assert.Equal(t, "o1", page[1].ID)

	for _, offset := range []int{-16, 3} {
		f.queries = 0
		page, total, err = newFakeDynamoStore(f).ListOrdersByOwner(context.Background(), "u1", offset, 5)
		require.NoError(t, err, "offset %d", offset)
		assert.Equal(t, 3, total)
		assert.Empty(t, page, "offset %d", offset)
		assert.Zero(t, f.queries, "offset %d", offset)
	}
}

func TestDynamoStore_UpdateLeavesStock(t *testing.T) {
	f := &fakeDynamo{}
	err := newFakeDynamoStore(f).Update(context.Background(), "p1", product("p1", "Pen", "2.00", 99, "office"))
	require.NoError(t, err)
	assert.NotContains(t, *f.lastUpdate.UpdateExpression, "stock")
	assert.NotContains(t, f.lastUpdate.ExpressionAttributeValues, ":st")
}

func TestDynamoStore_SetStockConditions(t *testing.T) {
	ctx := context.Background()
	readAt := time.Date(2025, 2, 3, 4, 5, 6, 789, time.UTC)
	ccf := &types.ConditionalCheckFailedException{Message: strPtr("condition failed")}

	tests := []struct {
		name    string
		fake    *fakeDynamo
		stock   int
		wantErr func(error) bool
	}{
		{"applied", &fakeDynamo{}, 7, nil},
		{"stale", &fakeDynamo{updateErr: ccf, getItem: marshalProduct(t, product("p1", "Pen", "1.00", 2, ""))}, 7, domain.IsStaleProductError},
		{"missing", &fakeDynamo{updateErr: ccf}, 7, domain.IsProductNotFoundError},
		{"negative", &fakeDynamo{}, -1, domain.IsInvalidProductError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newFakeDynamoStore(tt.fake).SetStock(ctx, "p1", tt.stock, readAt)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, "attribute_exists(PK) AND updatedAt = :r", *tt.fake.lastUpdate.ConditionExpression)
				want, err := timeValue(readAt)
				require.NoError(t, err)
				assert.Equal(t, want, tt.fake.lastUpdate.ExpressionAttributeValues[":r"])
				return
			}
			assert.True(t, tt.wantErr(err), "got %v", err)
		})
	}
}

func strPtr(s string) *string { return &s }
