package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/ftpplus/internal/logger"
	"github.com/marmos91/ftpplus/pkg/scanner"
	"github.com/marmos91/ftpplus/pkg/seal"
	"github.com/marmos91/ftpplus/pkg/store"
	storeBadger "github.com/marmos91/ftpplus/pkg/store/badger"
	storeBolt "github.com/marmos91/ftpplus/pkg/store/bolt"
	storeFs "github.com/marmos91/ftpplus/pkg/store/fs"
	storeMemory "github.com/marmos91/ftpplus/pkg/store/memory"
	storeS3 "github.com/marmos91/ftpplus/pkg/store/s3"
	"github.com/marmos91/ftpplus/pkg/validation"
	"github.com/mitchellh/mapstructure"
)

// CreateBlobStore creates the blob backend selected by cfg.Type.
//
// The type-specific option map is decoded into the backend's own Config
// and passed to its constructor.
//
// Supported types:
//   - "filesystem": pkg/store/fs (default)
//   - "memory": pkg/store/memory (ephemeral)
//   - "badger": pkg/store/badger
//   - "bolt": pkg/store/bolt
//   - "s3": pkg/store/s3 (Amazon S3 or compatible storage)
func CreateBlobStore(ctx context.Context, cfg *StorageConfig) (store.BlobStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "filesystem":
		return createFilesystemStore(cfg.Filesystem)
	case "memory":
		return storeMemory.New(), nil
	case "badger":
		return createBadgerStore(ctx, cfg.Badger)
	case "bolt":
		return createBoltStore(cfg.Bolt)
	case "s3":
		return createS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage type: %q (supported: filesystem, memory, badger, bolt, s3)", cfg.Type)
	}
}

// decodeOptions decodes a backend option map, accepting duration strings
// ("5s") and loosely typed scalars from YAML and env overrides.
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(options)
}

func createFilesystemStore(options map[string]any) (store.BlobStore, error) {
	var storeCfg storeFs.Config
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem storage config: %w", err)
	}
	if storeCfg.Path == "" {
		return nil, fmt.Errorf("filesystem storage: path is required")
	}

	s, err := storeFs.New(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem storage: %w", err)
	}

	logger.Info("Filesystem storage initialized at %s", s.Root())
	return s, nil
}

func createBadgerStore(ctx context.Context, options map[string]any) (store.BlobStore, error) {
	var storeCfg storeBadger.Config
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger storage config: %w", err)
	}
	if storeCfg.DBPath == "" && !storeCfg.InMemory {
		return nil, fmt.Errorf("badger storage: db_path is required")
	}

	s, err := storeBadger.New(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger storage: %w", err)
	}

	logger.Info("Badger storage initialized at %s", storeCfg.DBPath)
	return s, nil
}

func createBoltStore(options map[string]any) (store.BlobStore, error) {
	var storeCfg storeBolt.Config
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode bolt storage config: %w", err)
	}
	if storeCfg.DBPath == "" {
		return nil, fmt.Errorf("bolt storage: db_path is required")
	}

	s, err := storeBolt.New(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create bolt storage: %w", err)
	}

	logger.Info("Bolt storage initialized at %s", storeCfg.DBPath)
	return s, nil
}

// S3StorageConfig holds the options of the "s3" storage type.
type S3StorageConfig struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

func createS3Store(ctx context.Context, options map[string]any) (store.BlobStore, error) {
	var storeCfg S3StorageConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 storage config: %w", err)
	}

	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 storage: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 storage: region is required")
	}

	client, err := newS3Client(ctx, storeCfg)
	if err != nil {
		return nil, err
	}

	s, err := storeS3.New(ctx, storeS3.Config{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 storage: %w", err)
	}

	logger.Info("S3 storage initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)
	return s, nil
}

// newS3Client builds an S3 client from static or default-chain credentials.
func newS3Client(ctx context.Context, storeCfg S3StorageConfig) (*awss3.Client, error) {
	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(storeCfg.Region),
	}

	// Static credentials when provided, default credential chain otherwise.
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(storeCfg.AccessKeyID, storeCfg.SecretAccessKey, ""),
		))
	}

	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		// Custom endpoints (MinIO, Localstack) need path-style addressing.
		if storeCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(storeCfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// CreateScanner creates the malware scanner selected by cfg.Type.
//
// Supported types:
//   - "auto": clamscan on Unix, Windows Defender on Windows, none if absent
//   - "clamd": a clamd daemon at ClamdAddress
//   - "exec": an arbitrary command-line scanner at Path
//   - "none": no scanning
func CreateScanner(cfg *ScannerConfig) (scanner.Scanner, error) {
	switch cfg.Type {
	case "auto":
		s := scanner.Detect()
		if e, ok := s.(*scanner.ExecScanner); ok {
			e.Timeout = cfg.Timeout
		}
		return s, nil
	case "clamd":
		if cfg.ClamdAddress == "" {
			return nil, fmt.Errorf("clamd scanner: clamd_address is required")
		}
		s := scanner.NewClamdScanner(cfg.ClamdAddress, cfg.Timeout)
		if err := s.Ping(); err != nil {
			logger.Warn("clamd at %s is not answering yet: %v", cfg.ClamdAddress, err)
		}
		return s, nil
	case "exec":
		if cfg.Path == "" {
			return nil, fmt.Errorf("exec scanner: path is required")
		}
		return &scanner.ExecScanner{Path: cfg.Path, Args: cfg.Args, Timeout: cfg.Timeout}, nil
	case "none":
		logger.Warn("Malware scanning disabled by configuration")
		return scanner.Absent{}, nil
	default:
		return nil, fmt.Errorf("unknown scanner type: %q (supported: auto, clamd, exec, none)", cfg.Type)
	}
}

// CreateSealer builds the at-rest cipher. Without a key file the key is
// ephemeral.
func CreateSealer(cfg *EncryptionConfig) (*seal.Sealer, error) {
	if cfg.KeyFile == "" {
		logger.Warn("No encryption.key_file configured: stored files will be unreadable after a restart")
		return seal.NewEphemeral()
	}

	key, created, err := seal.LoadOrGenerateKey(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load encryption key: %w", err)
	}
	if created {
		logger.Info("Generated new encryption key at %s", cfg.KeyFile)
	}
	return seal.New(key)
}

// CreateValidator builds the upload validator from the limits section.
func CreateValidator(cfg *LimitsConfig) *validation.Validator {
	return validation.New(cfg.MaxFileSize, cfg.AllowedExtensions)
}

// StoreConfig maps the limits section onto the storage engine settings.
func StoreConfig(cfg *LimitsConfig) store.Config {
	return store.Config{MaxBulkFiles: cfg.MaxBulkFiles}
}
