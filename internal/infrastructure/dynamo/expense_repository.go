package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fintrack/internal/domain/expense"
	"fintrack/internal/infrastructure/awsx"
)

// Attribute names follow the existing Expenses table: partition key userId,
// sort key expenseId.
const (
	ownerAttr     = "userId"
	recordAttr    = "expenseId"
	categoryAttr  = "category"
	amountAttr    = "amount"
	dateAttr      = "date"
	receiptAttr   = "receiptUrl"
	createdAtAttr = "createdAt"
	updatedAtAttr = "updatedAt"
)

// API is the subset of *dynamodb.Client used by the repository.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type expenseItem struct {
	OwnerID    string  `dynamodbav:"userId"`
	RecordID   string  `dynamodbav:"expenseId"`
	Category   string  `dynamodbav:"category"`
	Amount     string  `dynamodbav:"amount"`
	Date       string  `dynamodbav:"date"`
	ReceiptRef *string `dynamodbav:"receiptUrl,omitempty"`
	CreatedAt  string  `dynamodbav:"createdAt"`
	UpdatedAt  string  `dynamodbav:"updatedAt"`
}

func toItem(e *expense.Expense) expenseItem {
	return expenseItem{
		OwnerID:    e.OwnerID,
		RecordID:   e.RecordID,
		Category:   e.Category,
		Amount:     expense.FormatAmount(e.Amount),
		Date:       e.Date,
		ReceiptRef: e.ReceiptRef,
		CreatedAt:  e.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:  e.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (it expenseItem) toExpense() (*expense.Expense, error) {
	amount, err := decimal.NewFromString(it.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q on %s: %w", it.Amount, it.RecordID, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, it.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid createdAt on %s: %w", it.RecordID, err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, it.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid updatedAt on %s: %w", it.RecordID, err)
	}

	receiptRef := it.ReceiptRef
	if receiptRef != nil && *receiptRef == "" {
		receiptRef = nil
	}

	return &expense.Expense{
		OwnerID:    it.OwnerID,
		RecordID:   it.RecordID,
		Category:   it.Category,
		Amount:     amount,
		Date:       it.Date,
		ReceiptRef: receiptRef,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}

// ExpenseRepository stores expenses in a single DynamoDB table.
type ExpenseRepository struct {
	api    API
	table  string
	logger *zap.Logger
}

var _ expense.Repository = (*ExpenseRepository)(nil)

func NewExpenseRepository(api API, table string, logger *zap.Logger) *ExpenseRepository {
	return &ExpenseRepository{api: api, table: table, logger: logger}
}

func key(ownerID, recordID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		ownerAttr:  &types.AttributeValueMemberS{Value: ownerID},
		recordAttr: &types.AttributeValueMemberS{Value: recordID},
	}
}

func (r *ExpenseRepository) Put(ctx context.Context, e *expense.Expense) error {
	item, err := attributevalue.MarshalMap(toItem(e))
	if err != nil {
		return fmt.Errorf("failed to marshal expense: %w", err)
	}

	_, err = r.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	})
	if err != nil {
		return awsx.Classify("failed to write expense", err)
	}

	r.logger.Debug("expense written", zap.String("owner_id", e.OwnerID), zap.String("record_id", e.RecordID))
	return nil
}

func (r *ExpenseRepository) Get(ctx context.Context, ownerID, recordID string) (*expense.Expense, error) {
	out, err := r.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            key(ownerID, recordID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, awsx.Classify("failed to read expense", err)
	}
	if out.Item == nil {
		return nil, expense.ErrExpenseNotFound
	}
	return unmarshalExpense(out.Item)
}

// ListByOwner queries the owner's partition only, following pagination.
func (r *ExpenseRepository) ListByOwner(ctx context.Context, ownerID string) ([]*expense.Expense, error) {
	keyCond := expression.Key(ownerAttr).Equal(expression.Value(ownerID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	paginator := dynamodb.NewQueryPaginator(r.api, &dynamodb.QueryInput{
		TableName:                 aws.String(r.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	expenses := []*expense.Expense{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, awsx.Classify("failed to query expenses", err)
		}
		for _, item := range page.Items {
			e, err := unmarshalExpense(item)
			if err != nil {
				return nil, err
			}
			expenses = append(expenses, e)
		}
	}

	r.logger.Debug("expenses queried", zap.String("owner_id", ownerID), zap.Int("count", len(expenses)))
	return expenses, nil
}

// Update applies the patch with one conditional UpdateItem, so concurrent
// partial updates to different attributes of one record never overwrite each other.
func (r *ExpenseRepository) Update(ctx context.Context, ownerID, recordID string, patch expense.Patch, updatedAt time.Time) (*expense.Expense, error) {
	expr, err := buildUpdateExpression(patch, updatedAt)
	if err != nil {
		return nil, err
	}

	out, err := r.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       key(ownerID, recordID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailure(err) {
			return nil, expense.ErrExpenseNotFound
		}
		return nil, awsx.Classify("failed to update expense", err)
	}
	return unmarshalExpense(out.Attributes)
}

func (r *ExpenseRepository) Delete(ctx context.Context, ownerID, recordID string) (*expense.Expense, error) {
	cond := expression.AttributeExists(expression.Name(recordAttr))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build delete condition: %w", err)
	}

	out, err := r.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(r.table),
		Key:                      key(ownerID, recordID),
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
		ReturnValues:             types.ReturnValueAllOld,
	})
	if err != nil {
		if isConditionFailure(err) {
			return nil, expense.ErrExpenseNotFound
		}
		return nil, awsx.Classify("failed to delete expense", err)
	}
	if out.Attributes == nil {
		return nil, expense.ErrExpenseNotFound
	}
	return unmarshalExpense(out.Attributes)
}

func buildUpdateExpression(patch expense.Patch, updatedAt time.Time) (expression.Expression, error) {
	update := expression.Set(expression.Name(updatedAtAttr), expression.Value(updatedAt.UTC().Format(time.RFC3339Nano)))
	if patch.Category.Set {
		update = update.Set(expression.Name(categoryAttr), expression.Value(patch.Category.Value))
	}
	if patch.Amount.Set {
		update = update.Set(expression.Name(amountAttr), expression.Value(expense.FormatAmount(patch.Amount.Value)))
	}
	if patch.Date.Set {
		update = update.Set(expression.Name(dateAttr), expression.Value(patch.Date.Value))
	}
	if patch.ReceiptRef.Set {
		if patch.ReceiptRef.Value == "" {
			update = update.Remove(expression.Name(receiptAttr))
		} else {
			update = update.Set(expression.Name(receiptAttr), expression.Value(patch.ReceiptRef.Value))
		}
	}

	cond := expression.AttributeExists(expression.Name(recordAttr))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return expression.Expression{}, fmt.Errorf("failed to build update expression: %w", err)
	}
	return expr, nil
}

func unmarshalExpense(av map[string]types.AttributeValue) (*expense.Expense, error) {
	var item expenseItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal expense: %w", err)
	}
	return item.toExpense()
}

func isConditionFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
