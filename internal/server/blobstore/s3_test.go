package blobstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 embeds the interface so tests only implement what they call.
type fakeS3 struct {
	s3API

	putIn     *s3.PutObjectInput
	putErr    error
	getBody   string
	getErr    error
	headErr   error
	deleteErr error
	buckets   []types.Bucket
	createErr error
	policyIn  *s3.PutBucketPolicyInput
	policyErr error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.putIn = in
	return &s3.PutObjectOutput{}, f.putErr
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.getBody))}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return &s3.HeadObjectOutput{}, f.headErr
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	return &s3.DeleteObjectOutput{}, f.deleteErr
}

func (f *fakeS3) ListBuckets(ctx context.Context, in *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	return &s3.ListBucketsOutput{Buckets: f.buckets}, nil
}

func (f *fakeS3) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	return &s3.CreateBucketOutput{}, f.createErr
}

func (f *fakeS3) PutBucketPolicy(ctx context.Context, in *s3.PutBucketPolicyInput, _ ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error) {
	f.policyIn = in
	return &s3.PutBucketPolicyOutput{}, f.policyErr
}

type fakePresigner struct {
	ttl time.Duration
	err error
}

func (p *fakePresigner) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var o s3.PresignOptions
	for _, fn := range optFns {
		fn(&o)
	}
	p.ttl = o.Expires
	if p.err != nil {
		return nil, p.err
	}
	return &v4.PresignedHTTPRequest{URL: "https://s3.local/" + aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key) + "?sig=x"}, nil
}

func TestNewS3Store_AppliesOptions(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	origNewS3 := newS3ClientFromConfig
	origNewPre := newS3PresignClient
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewS3
		newS3PresignClient = origNewPre
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "us-east-1", lo.Region)
		assert.NotNil(t, lo.Credentials)
		return aws.Config{}, nil
	}

	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return &s3.Client{}
	}
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient { return &s3.PresignClient{} }

	st, err := NewS3Store(context.Background(), S3Options{
		Region: "us-east-1", AccessKey: "admin", SecretKey: "secret",
		BaseEndpoint: "http://127.0.0.1:9000", UsePathStyle: true,
	})
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "http://127.0.0.1:9000", aws.ToString(opts.BaseEndpoint))
	assert.True(t, opts.UsePathStyle)

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}
	_, err = NewS3Store(context.Background(), S3Options{Region: "us-east-1"})
	assert.ErrorContains(t, err, "load-fail")
}

func TestS3Store_PutIsConditional(t *testing.T) {
	f := &fakeS3{}
	st := &S3Store{client: f, presigner: &fakePresigner{}}

	require.NoError(t, st.Put(context.Background(), "docs", "u1/a.txt", []byte("hello"), "text/plain"))
	assert.Equal(t, "*", aws.ToString(f.putIn.IfNoneMatch))
	assert.Equal(t, "text/plain", aws.ToString(f.putIn.ContentType))
	assert.Equal(t, int64(5), aws.ToInt64(f.putIn.ContentLength))

	f.putErr = &smithy.GenericAPIError{Code: "PreconditionFailed"}
	err := st.Put(context.Background(), "docs", "u1/a.txt", []byte("hello"), "text/plain")
	assert.ErrorIs(t, err, ErrBlobExists)

	f.putErr = errors.New("network")
	err = st.Put(context.Background(), "docs", "u1/a.txt", []byte("hello"), "text/plain")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBlobExists)
}

func TestS3Store_Get(t *testing.T) {
	f := &fakeS3{getBody: "payload"}
	st := &S3Store{client: f}

	data, err := st.Get(context.Background(), "docs", "k")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	f.getErr = &types.NoSuchKey{}
	_, err = st.Get(context.Background(), "docs", "k")
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestS3Store_RemoveMissingIsNoop(t *testing.T) {
	f := &fakeS3{deleteErr: &smithy.GenericAPIError{Code: "NoSuchKey"}}
	st := &S3Store{client: f}
	assert.NoError(t, st.Remove(context.Background(), "docs", "k"))

	f.deleteErr = errors.New("denied")
	assert.Error(t, st.Remove(context.Background(), "docs", "k"))
}

func TestS3Store_SignURL(t *testing.T) {
	f := &fakeS3{}
	p := &fakePresigner{}
	st := &S3Store{client: f, presigner: p}

	u, err := st.SignURL(context.Background(), "docs", "u1/a.txt", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "https://s3.local/docs/u1/a.txt?sig=x", u)
	assert.Equal(t, time.Hour, p.ttl)

	f.headErr = &types.NotFound{}
	_, err = st.SignURL(context.Background(), "docs", "u1/a.txt", time.Hour)
	assert.ErrorIs(t, err, ErrBlobNotFound)

	f.headErr = nil
	p.err = errors.New("sign-fail")
	_, err = st.SignURL(context.Background(), "docs", "u1/a.txt", time.Hour)
	assert.ErrorContains(t, err, "sign-fail")
}

func TestS3Store_Buckets(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &fakeS3{buckets: []types.Bucket{{Name: aws.String("docs"), CreationDate: aws.Time(created)}}}
	st := &S3Store{client: f}

	got, err := st.ListBuckets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Bucket{{Name: "docs", CreatedAt: created}}, got)

	f.createErr = &types.BucketAlreadyOwnedByYou{}
	require.NoError(t, st.CreateBucket(context.Background(), "docs", false))
	assert.Nil(t, f.policyIn)

	f.createErr = nil
	require.NoError(t, st.CreateBucket(context.Background(), "public-docs", true))
	require.NotNil(t, f.policyIn)
	assert.Contains(t, aws.ToString(f.policyIn.Policy), "arn:aws:s3:::public-docs/*")

	f.createErr = &smithy.GenericAPIError{Code: "BucketAlreadyExists"}
	assert.Error(t, st.CreateBucket(context.Background(), "taken", false))
}
