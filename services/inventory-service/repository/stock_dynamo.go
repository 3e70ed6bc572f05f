package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/yashrajoria/commerce-core/services/inventory-service/models"
)

// DynamoStockRepository implements StockRepository on a DynamoDB table keyed
// by "id". The version check is a ConditionExpression on UpdateItem.
type DynamoStockRepository struct {
	client *dynamodb.Client
	table  string
}

func NewDynamoStockRepository(client *dynamodb.Client, table string) *DynamoStockRepository {
	return &DynamoStockRepository{client: client, table: table}
}

type ddbStock struct {
	ID        string `dynamodbav:"id"`
	ProductID string `dynamodbav:"product_id"`
	OptionID  string `dynamodbav:"option_id"`
	Total     uint   `dynamodbav:"total"`
	Available uint   `dynamodbav:"available"`
	Reserved  uint   `dynamodbav:"reserved"`
	Sold      uint   `dynamodbav:"sold"`
	Version   uint64 `dynamodbav:"version"`
	CreatedAt string `dynamodbav:"created_at"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

func toDDB(s *models.Stock) ddbStock {
	return ddbStock{
		ID:        s.ID.String(),
		ProductID: s.ProductID,
		OptionID:  s.OptionID,
		Total:     s.Total,
		Available: s.Available,
		Reserved:  s.Reserved,
		Sold:      s.Sold,
		Version:   s.Version,
		CreatedAt: s.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: s.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func (d ddbStock) toModel() (*models.Stock, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("parse stock id %q: %w", d.ID, err)
	}
	s := &models.Stock{
		ID:        id,
		ProductID: d.ProductID,
		OptionID:  d.OptionID,
		Total:     d.Total,
		Available: d.Available,
		Reserved:  d.Reserved,
		Sold:      d.Sold,
		Version:   d.Version,
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339Nano, d.CreatedAt)
	s.UpdatedAt, _ = time.Parse(time.RFC3339Nano, d.UpdatedAt)
	return s, nil
}

func (r *DynamoStockRepository) Create(ctx context.Context, stock *models.Stock) error {
	item, err := attributevalue.MarshalMap(toDDB(stock))
	if err != nil {
		return fmt.Errorf("marshal stock: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: %s", models.ErrStockExists, stock.ID)
		}
		return fmt.Errorf("dynamodb PutItem failed: %w", err)
	}
	return nil
}

func (r *DynamoStockRepository) Load(ctx context.Context, id uuid.UUID) (*models.Stock, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id.String()}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb GetItem failed: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, models.ErrStockNotFound
	}

	var item ddbStock
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal stock: %w", err)
	}
	stock, err := item.toModel()
	if err != nil {
		return nil, err
	}
	if err := stock.Validate(); err != nil {
		return nil, err
	}
	return stock, nil
}

func (r *DynamoStockRepository) CASWrite(ctx context.Context, next *models.Stock, expectedVersion uint64) (int64, error) {
	values, err := attributevalue.MarshalMap(map[string]any{
		":avail":    next.Available,
		":resv":     next.Reserved,
		":sold":     next.Sold,
		":next":     next.Version,
		":expected": expectedVersion,
		":now":      next.UpdatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return 0, fmt.Errorf("marshal update values: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.table),
		Key:                 map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: next.ID.String()}},
		UpdateExpression:    aws.String("SET #avail = :avail, #resv = :resv, #sold = :sold, #ver = :next, updated_at = :now"),
		ConditionExpression: aws.String("#ver = :expected"),
		ExpressionAttributeNames: map[string]string{
			"#avail": "available",
			"#resv":  "reserved",
			"#sold":  "sold",
			"#ver":   "version",
		},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return 0, nil
		}
		return 0, fmt.Errorf("dynamodb UpdateItem failed: %w", err)
	}
	return 1, nil
}

func (r *DynamoStockRepository) List(ctx context.Context, limit int) ([]*models.Stock, error) {
	out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(r.table),
		Limit:     aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb Scan failed: %w", err)
	}

	var items []ddbStock
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, fmt.Errorf("unmarshal stock list: %w", err)
	}
	stocks := make([]*models.Stock, 0, len(items))
	for _, item := range items {
		s, err := item.toModel()
		if err != nil {
			return nil, err
		}
		stocks = append(stocks, s)
	}
	return stocks, nil
}
