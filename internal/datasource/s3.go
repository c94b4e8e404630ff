package datasource

import (
	"context"
	"encoding/csv"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/plotly/falcon/internal/domain"
)

// S3Gateway treats a bucket as a data source: object keys are the "tables"
// and a query names the CSV object to fetch. Connections carry bucket,
// region, accessKeyId, secretAccessKey, and an optional custom endpoint.
type S3Gateway struct {
	mu      sync.Mutex
	clients map[string]*s3.Client
}

// NewS3Gateway creates a gateway with an empty client cache.
func NewS3Gateway() *S3Gateway {
	return &S3Gateway{clients: make(map[string]*s3.Client)}
}

func (g *S3Gateway) client(conn *domain.Connection) (*s3.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if client, ok := g.clients[conn.ID]; ok {
		return client, nil
	}

	keyID := conn.Str("accessKeyId")
	secret := conn.Str("secretAccessKey")
	if keyID == "" || secret == "" {
		return nil, domain.ErrValidation("s3 connection requires accessKeyId and secretAccessKey")
	}

	opts := s3.Options{
		Region:      conn.Str("region"),
		Credentials: aws.NewCredentialsCache(awscreds.NewStaticCredentialsProvider(keyID, secret, "")),
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if endpoint := conn.Str("endpoint"); endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}

	client := s3.New(opts)
	g.clients[conn.ID] = client
	return client, nil
}

func bucketOf(conn *domain.Connection) (string, error) {
	bucket := conn.Str("bucket")
	if bucket == "" {
		return "", domain.ErrValidation("s3 connection requires a bucket")
	}
	return bucket, nil
}

// Connect verifies the bucket exists and the credentials can reach it.
func (g *S3Gateway) Connect(ctx context.Context, conn *domain.Connection) error {
	client, err := g.client(conn)
	if err != nil {
		return err
	}
	bucket, err := bucketOf(conn)
	if err != nil {
		return err
	}
	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	return err
}

// Query downloads the object named by the query string and parses it as CSV:
// first record is the column names, the rest are rows.
func (g *S3Gateway) Query(ctx context.Context, query string, conn *domain.Connection) (*domain.QueryResult, error) {
	client, err := g.client(conn)
	if err != nil {
		return nil, err
	}
	bucket, err := bucketOf(conn)
	if err != nil {
		return nil, err
	}

	obj, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(query),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, query, err)
	}
	defer obj.Body.Close() //nolint:errcheck

	records, err := csv.NewReader(obj.Body).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse s3://%s/%s as CSV: %w", bucket, query, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("s3://%s/%s is empty", bucket, query)
	}

	result := &domain.QueryResult{Columnnames: records[0], Rows: make([][]any, 0, len(records)-1)}
	for _, record := range records[1:] {
		row := make([]any, len(record))
		for i, v := range record {
			row[i] = v
		}
		result.Rows = append(result.Rows, row)
	}
	return result, nil
}

// ListTables enumerates the bucket's object keys.
func (g *S3Gateway) ListTables(ctx context.Context, conn *domain.Connection) ([]string, error) {
	client, err := g.client(conn)
	if err != nil {
		return nil, err
	}
	bucket, err := bucketOf(conn)
	if err != nil {
		return nil, err
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s: %w", bucket, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

var _ domain.DataSourceGateway = (*S3Gateway)(nil)
