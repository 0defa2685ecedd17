package runstore

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// RunSummaryTableVersion is this table's migration version, adapted from
// the teacher's migrate.CreateObjectMetadataTable pattern
// (internal/repository/migrate/0001_create_object_metadata.go).
const RunSummaryTableVersion = "20260729000000_run_summary_table"

// CreateRunSummaryTable creates the run-summary table if it does not
// already exist, waiting for it to become active. Called once by the CLI's
// `check` subcommand when DYNAMODB_TABLE is configured.
func CreateRunSummaryTable(ctx context.Context, client *dynamodb.Client, tableName string) error {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err == nil {
		return nil // already exists
	}

	input := &dynamodb.CreateTableInput{
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("bucket_name"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("run_id"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("bucket_name"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("run_id"), KeyType: types.KeyTypeRange},
		},
		TableName:   aws.String(tableName),
		BillingMode: types.BillingModePayPerRequest,
		Tags: []types.Tag{
			{Key: aws.String("Purpose"), Value: aws.String("capacity-benchmark-run-summaries")},
		},
	}

	if _, err := client.CreateTable(ctx, input); err != nil {
		return err
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	}, 5*time.Minute)
}
