//go:build integration

package s3_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/ftpplus/pkg/config"
	"github.com/marmos91/ftpplus/pkg/seal"
	"github.com/marmos91/ftpplus/pkg/store"
	s3store "github.com/marmos91/ftpplus/pkg/store/s3"
	storetesting "github.com/marmos91/ftpplus/pkg/store/testing"
)

func localstackEndpoint() string {
	if endpoint := os.Getenv("LOCALSTACK_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	return "http://localhost:4566"
}

// setupTestS3 creates an S3 client and test bucket for integration tests.
//
// It connects to Localstack (or other S3-compatible endpoint) and creates a
// test bucket that will be cleaned up when the cleanup function is called.
func setupTestS3(t *testing.T, bucketName string) (*s3.Client, func()) {
	t.Helper()
	ctx := context.Background()

	cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	if err != nil {
		t.Fatalf("Failed to load AWS config: %v", err)
	}

	// Path-style URLs are required for Localstack
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(localstackEndpoint())
		o.UsePathStyle = true
	})

	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	})
	if err != nil {
		t.Fatalf("Failed to create test bucket: %v", err)
	}

	cleanup := func() {
		listResp, _ := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket: aws.String(bucketName),
		})
		if listResp != nil {
			for _, obj := range listResp.Contents {
				_, _ = client.DeleteObject(ctx, &s3.DeleteObjectInput{
					Bucket: aws.String(bucketName),
					Key:    obj.Key,
				})
			}
		}

		_, _ = client.DeleteBucket(ctx, &s3.DeleteBucketInput{
			Bucket: aws.String(bucketName),
		})
	}

	return client, cleanup
}

// TestS3BlobStore_Integration runs the complete blob store test suite
// against a real S3-compatible service (Localstack).
//
// Prerequisites:
//   - Localstack running on localhost:4566
//   - Run with: go test -tags=integration ./test/integration/s3/...
//
// To start Localstack:
//
//	docker run --rm -p 4566:4566 localstack/localstack
func TestS3BlobStore_Integration(t *testing.T) {
	ctx := context.Background()

	bucketName := "ftpplus-test-bucket"
	client, cleanup := setupTestS3(t, bucketName)
	defer cleanup()

	// Each test gets a fresh store instance with a unique key prefix
	testCounter := 0
	suite := &storetesting.BlobStoreTestSuite{
		NewStore: func(t *testing.T) store.BlobStore {
			testCounter++
			s, err := s3store.New(ctx, s3store.Config{
				Client:    client,
				Bucket:    bucketName,
				KeyPrefix: fmt.Sprintf("test-%d/", testCounter),
			})
			if err != nil {
				t.Fatalf("Failed to create S3 blob store for test %d: %v", testCounter, err)
			}
			return s
		},
	}

	suite.Run(t)
}

// TestS3Factory_Integration builds the backend through the configuration
// factory, as the server does, and runs sealed files through the engine.
func TestS3Factory_Integration(t *testing.T) {
	ctx := context.Background()

	bucketName := "ftpplus-factory-test"
	_, cleanup := setupTestS3(t, bucketName)
	defer cleanup()

	blobs, err := config.CreateBlobStore(ctx, &config.StorageConfig{
		Type: "s3",
		S3: map[string]any{
			"region":            "us-east-1",
			"bucket":            bucketName,
			"endpoint":          localstackEndpoint(),
			"access_key_id":     "test",
			"secret_access_key": "test",
			"key_prefix":        "ftpplus/",
			"max_retries":       3,
		},
	})
	if err != nil {
		t.Fatalf("Failed to create S3 backend: %v", err)
	}

	sealer, err := seal.NewEphemeral()
	if err != nil {
		t.Fatalf("Failed to create sealer: %v", err)
	}
	engine := store.NewEngine(blobs, sealer, store.Config{})
	defer engine.Close()

	ns, err := engine.NamespaceFor(ctx, "203.0.113.7:51234")
	if err != nil {
		t.Fatalf("NamespaceFor failed: %v", err)
	}

	if err := engine.Put(ctx, ns, "foto.jpg", []byte("jpeg bytes")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	names, err := engine.List(ctx, ns)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(names) != 1 || names[0] != "foto.jpg" {
		t.Fatalf("List = %v, want [foto.jpg]", names)
	}

	got, err := engine.Get(ctx, ns, "foto.jpg")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "jpeg bytes" {
		t.Fatalf("Get = %q", got)
	}

	if err := engine.Delete(ctx, ns, "foto.jpg"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
}
