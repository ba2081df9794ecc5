package storedynamo

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/beejcap/lsp-auth/pkg/errx"
	"github.com/beejcap/lsp-auth/pkg/store"
)

// DynamoStore implements store.Store on a single DynamoDB table keyed by
// (pk, sk). Record attributes live at the top level of the item next to the
// key attributes.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

// NewDynamoStore creates a store backed by the given table.
func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
	}
}

// Get returns the record for key, or (nil, nil) when absent.
func (d *DynamoStore) Get(ctx context.Context, key store.Key) (*store.Record, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            keyAttributes(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, store.ErrUnavailable().WithCause(err).
			WithDetail("pk", key.PK).
			WithDetail("sk", key.SK)
	}
	if out.Item == nil {
		return nil, nil
	}

	var attr map[string]string
	if err := attributevalue.UnmarshalMap(out.Item, &attr); err != nil {
		return nil, errx.Wrap(err, "failed to unmarshal record", errx.TypeInternal)
	}
	delete(attr, "pk")
	delete(attr, "sk")

	return &store.Record{Key: key, Attr: attr}, nil
}

// ConditionalUpdate merges set into the item and removes the named
// attributes, creating the item unless RequireExists is set.
func (d *DynamoStore) ConditionalUpdate(ctx context.Context, key store.Key, set store.Attributes, remove []string, opts ...store.UpdateOption) error {
	options := store.UpdateOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	expr, names, values := buildUpdateExpression(set, remove)

	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.tableName),
		Key:                       keyAttributes(key),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}
	if options.RequireExists {
		input.ConditionExpression = aws.String("attribute_exists(pk)")
	}

	if _, err := d.client.UpdateItem(ctx, input); err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errx.As(err, &condErr) {
			return store.ErrConditionFailed().WithCause(err).
				WithDetail("pk", key.PK).
				WithDetail("sk", key.SK)
		}
		return store.ErrUnavailable().WithCause(err).
			WithDetail("pk", key.PK).
			WithDetail("sk", key.SK)
	}
	return nil
}

// Delete removes the item; deleting an absent item is not an error.
func (d *DynamoStore) Delete(ctx context.Context, key store.Key) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key:       keyAttributes(key),
	})
	if err != nil {
		return store.ErrUnavailable().WithCause(err).
			WithDetail("pk", key.PK).
			WithDetail("sk", key.SK)
	}
	return nil
}

// TransactWrite maps the operations onto one TransactWriteItems call, which
// DynamoDB applies all-or-nothing.
func (d *DynamoStore) TransactWrite(ctx context.Context, ops []store.WriteOp) error {
	items := make([]types.TransactWriteItem, 0, len(ops))

	for _, op := range ops {
		switch op.Kind {
		case store.OpPut:
			item, err := attributevalue.MarshalMap(map[string]string(op.Set))
			if err != nil {
				return errx.Wrap(err, "failed to marshal record", errx.TypeInternal)
			}
			item["pk"] = &types.AttributeValueMemberS{Value: op.Key.PK}
			item["sk"] = &types.AttributeValueMemberS{Value: op.Key.SK}
			items = append(items, types.TransactWriteItem{
				Put: &types.Put{
					TableName: aws.String(d.tableName),
					Item:      item,
				},
			})

		case store.OpUpdate:
			expr, names, values := buildUpdateExpression(op.Set, op.Remove)
			items = append(items, types.TransactWriteItem{
				Update: &types.Update{
					TableName:                 aws.String(d.tableName),
					Key:                       keyAttributes(op.Key),
					UpdateExpression:          aws.String(expr),
					ExpressionAttributeNames:  names,
					ExpressionAttributeValues: values,
				},
			})

		case store.OpDelete:
			items = append(items, types.TransactWriteItem{
				Delete: &types.Delete{
					TableName: aws.String(d.tableName),
					Key:       keyAttributes(op.Key),
				},
			})

		default:
			return store.ErrTransactFailed().
				WithDetail("reason", "unknown operation kind").
				WithDetail("kind", string(op.Kind))
		}
	}

	_, err := d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errx.As(err, &canceled) {
			return store.ErrTransactFailed().WithCause(err).
				WithDetail("cancellation_reasons", cancellationReasons(canceled))
		}
		return store.ErrUnavailable().WithCause(err)
	}
	return nil
}

// Query returns all records under pk whose sort key begins with skPrefix.
func (d *DynamoStore) Query(ctx context.Context, pk, skPrefix string) ([]store.Record, error) {
	keyCond := "#pk = :pk"
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: pk},
	}
	if skPrefix != "" {
		keyCond += " AND begins_with(#sk, :sk)"
		values[":sk"] = &types.AttributeValueMemberS{Value: skPrefix}
	}

	var records []store.Record
	var startKey map[string]types.AttributeValue

	for {
		out, err := d.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(d.tableName),
			KeyConditionExpression: aws.String(keyCond),
			ExpressionAttributeNames: map[string]string{
				"#pk": "pk",
				"#sk": "sk",
			},
			ExpressionAttributeValues: values,
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, store.ErrUnavailable().WithCause(err).WithDetail("pk", pk)
		}

		for _, item := range out.Items {
			var attr map[string]string
			if err := attributevalue.UnmarshalMap(item, &attr); err != nil {
				return nil, errx.Wrap(err, "failed to unmarshal record", errx.TypeInternal)
			}
			key := store.Key{PK: attr["pk"], SK: attr["sk"]}
			delete(attr, "pk")
			delete(attr, "sk")
			records = append(records, store.Record{Key: key, Attr: attr})
		}

		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	return records, nil
}

func keyAttributes(key store.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: key.PK},
		"sk": &types.AttributeValueMemberS{Value: key.SK},
	}
}

// buildUpdateExpression renders "SET ... REMOVE ..." with aliased attribute
// names so reserved words like "role" stay safe.
func buildUpdateExpression(set store.Attributes, remove []string) (string, map[string]string, map[string]types.AttributeValue) {
	names := make(map[string]string)
	values := make(map[string]types.AttributeValue)

	var parts []string

	if len(set) > 0 {
		assignments := make([]string, 0, len(set))
		i := 0
		for _, k := range sortedKeys(set) {
			nameAlias := fmt.Sprintf("#s%d", i)
			valueAlias := fmt.Sprintf(":s%d", i)
			names[nameAlias] = k
			values[valueAlias] = &types.AttributeValueMemberS{Value: set[k]}
			assignments = append(assignments, nameAlias+" = "+valueAlias)
			i++
		}
		parts = append(parts, "SET "+strings.Join(assignments, ", "))
	}

	if len(remove) > 0 {
		aliases := make([]string, 0, len(remove))
		for i, k := range remove {
			alias := fmt.Sprintf("#r%d", i)
			names[alias] = k
			aliases = append(aliases, alias)
		}
		parts = append(parts, "REMOVE "+strings.Join(aliases, ", "))
	}

	// DynamoDB rejects empty expression maps outright.
	if len(values) == 0 {
		values = nil
	}
	if len(names) == 0 {
		names = nil
	}
	return strings.Join(parts, " "), names, values
}

// sortedKeys keeps update expressions deterministic so request logs diff
// cleanly.
func sortedKeys(attr store.Attributes) []string {
	keys := make([]string, 0, len(attr))
	for k := range attr {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cancellationReasons(e *types.TransactionCanceledException) []string {
	out := make([]string, 0, len(e.CancellationReasons))
	for _, r := range e.CancellationReasons {
		if r.Code != nil {
			out = append(out, *r.Code)
		}
	}
	return out
}
