// Package runstore optionally persists a run's final summary to DynamoDB,
// adapted from the teacher's MetadataRepository
// (internal/repository/db/metadata_repository.go): PutItem via
// attributevalue.MarshalMap keyed on a partition/sort key pair, generalized
// here from object metadata to benchmark run summaries. The teacher's
// DynamoDb client wrapper (internal/repository/db/db.go) is similarly
// adapted — one client, built once, reused across calls.
package runstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// RunSummary is the persisted record of one capacity-discovery run.
type RunSummary struct {
	BucketName      string `dynamodbav:"bucket_name"`
	RunID           string `dynamodbav:"run_id"`
	StorageKind     string `dynamodbav:"storage_kind"`
	ObjectKey       string `dynamodbav:"object_key"`
	BestConcurrency int    `dynamodbav:"best_concurrency"`
	BestThroughput  float64 `dynamodbav:"best_throughput_gbps"`
	TerminationNote string `dynamodbav:"termination_note"`
	StepCount       int    `dynamodbav:"step_count"`
	StartedAtUnix   int64  `dynamodbav:"started_at_unix"`
	FinishedAtUnix  int64  `dynamodbav:"finished_at_unix"`
}

// Store persists RunSummary records to a single DynamoDB table, keyed on
// (bucket_name, run_id).
type Store struct {
	client    *dynamodb.Client
	tableName string
}

// New builds a Store bound to tableName.
func New(client *dynamodb.Client, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Put writes summary to the table, replacing any prior record for the same
// (bucket_name, run_id).
func (s *Store) Put(ctx context.Context, summary RunSummary) error {
	item, err := attributevalue.MarshalMap(summary)
	if err != nil {
		return fmt.Errorf("marshaling run summary: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("writing run summary: %w", err)
	}
	return nil
}

// Get retrieves a previously-stored RunSummary by bucket and run id.
func (s *Store) Get(ctx context.Context, bucketName, runID string) (RunSummary, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"bucket_name": &types.AttributeValueMemberS{Value: bucketName},
			"run_id":      &types.AttributeValueMemberS{Value: runID},
		},
	})
	if err != nil {
		return RunSummary{}, fmt.Errorf("reading run summary: %w", err)
	}
	if result.Item == nil {
		return RunSummary{}, fmt.Errorf("no run summary found for %s/%s", bucketName, runID)
	}

	var summary RunSummary
	if err := attributevalue.UnmarshalMap(result.Item, &summary); err != nil {
		return RunSummary{}, fmt.Errorf("unmarshaling run summary: %w", err)
	}
	return summary, nil
}

// ListByBucket retrieves every RunSummary recorded for bucketName.
func (s *Store) ListByBucket(ctx context.Context, bucketName string) ([]RunSummary, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("#bucket_name = :bucket_name"),
		ExpressionAttributeNames: map[string]string{
			"#bucket_name": "bucket_name",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":bucket_name": &types.AttributeValueMemberS{Value: bucketName},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying run summaries: %w", err)
	}

	summaries := make([]RunSummary, 0, len(result.Items))
	for _, item := range result.Items {
		var summary RunSummary
		if err := attributevalue.UnmarshalMap(item, &summary); err != nil {
			return nil, fmt.Errorf("unmarshaling run summary: %w", err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}
