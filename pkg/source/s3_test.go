package source

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3Client struct {
	headErr   error
	headCalls int

	pages      []*s3.ListObjectsV2Output
	listErr    error
	listInputs []*s3.ListObjectsV2Input

	objects   map[string][]byte
	getInputs []*s3.GetObjectInput
}

func (f *fakeS3Client) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.headCalls++
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3Client) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.listInputs = append(f.listInputs, params)
	if f.listErr != nil {
		return nil, f.listErr
	}

	idx := 0
	if tok := aws.ToString(params.ContinuationToken); tok != "" {
		i, err := strconv.Atoi(tok)
		if err != nil {
			return nil, err
		}
		idx = i
	}
	return f.pages[idx], nil
}

func (f *fakeS3Client) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.getInputs = append(f.getInputs, params)

	data, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func newFakeS3Source(t *testing.T, client *fakeS3Client) *S3 {
	t.Helper()
	src, err := NewS3WithClient(client, S3Options{Bucket: "bkt"}, nil)
	require.NoError(t, err)
	return src
}

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		name   string
		uri    string
		bucket string
		key    string
		ok     bool
	}{
		{name: "object", uri: "s3://bkt/docs/a.md", bucket: "bkt", key: "docs/a.md", ok: true},
		{name: "bucket only", uri: "s3://bkt", bucket: "bkt", key: "", ok: true},
		{name: "bucket root", uri: "s3://bkt/", bucket: "bkt", key: "", ok: true},
		{name: "empty bucket", uri: "s3://", ok: false},
		{name: "local path", uri: "/tmp/docs/a.md", ok: false},
		{name: "wrong scheme", uri: "https://bkt/docs/a.md", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key, ok := ParseS3URI(tt.uri)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestIsS3URI(t *testing.T) {
	assert.True(t, IsS3URI("s3://bkt/docs/a.md"))
	assert.False(t, IsS3URI("/docs/a.md"))
	assert.False(t, IsS3URI("https://example.com/a.md"))
}

func TestNewS3WithClient_RequiresBucket(t *testing.T) {
	_, err := NewS3WithClient(&fakeS3Client{}, S3Options{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}

func TestS3_Name(t *testing.T) {
	src := newFakeS3Source(t, &fakeS3Client{})
	assert.Equal(t, "s3", src.Name())
}

func TestS3_ListRecursive(t *testing.T) {
	client := &fakeS3Client{
		pages: []*s3.ListObjectsV2Output{{
			Contents: []types.Object{
				{Key: aws.String("docs/a.md"), Size: aws.Int64(5)},
				{Key: aws.String("docs/sub/b.md"), Size: aws.Int64(7)},
				{Key: aws.String("docs/"), Size: aws.Int64(0)},
				{Key: aws.String("docs/.hidden"), Size: aws.Int64(3)},
			},
		}},
	}
	src := newFakeS3Source(t, client)

	files, err := src.List(context.Background(), "s3://bkt/docs", true)
	require.NoError(t, err)

	require.Len(t, files, 2)
	assert.Equal(t, "s3://bkt/docs/a.md", files[0].Path)
	assert.Equal(t, "a.md", files[0].Name)
	assert.Equal(t, int64(5), files[0].Size)
	assert.Equal(t, "s3://bkt/docs/sub/b.md", files[1].Path)
	assert.Equal(t, "b.md", files[1].Name)

	require.Len(t, client.listInputs, 1)
	assert.Equal(t, "bkt", aws.ToString(client.listInputs[0].Bucket))
	assert.Equal(t, "docs/", aws.ToString(client.listInputs[0].Prefix))
	assert.Nil(t, client.listInputs[0].Delimiter)
}

func TestS3_ListFlatUsesDelimiter(t *testing.T) {
	client := &fakeS3Client{
		pages: []*s3.ListObjectsV2Output{{
			Contents: []types.Object{
				{Key: aws.String("docs/a.md"), Size: aws.Int64(5)},
			},
		}},
	}
	src := newFakeS3Source(t, client)

	files, err := src.List(context.Background(), "docs", false)
	require.NoError(t, err)

	require.Len(t, files, 1)
	require.Len(t, client.listInputs, 1)
	assert.Equal(t, "/", aws.ToString(client.listInputs[0].Delimiter))
}

func TestS3_ListBucketRoot(t *testing.T) {
	client := &fakeS3Client{
		pages: []*s3.ListObjectsV2Output{{
			Contents: []types.Object{
				{Key: aws.String("a.md"), Size: aws.Int64(5)},
			},
		}},
	}
	src := newFakeS3Source(t, client)

	files, err := src.List(context.Background(), "s3://bkt", true)
	require.NoError(t, err)

	require.Len(t, files, 1)
	assert.Equal(t, "s3://bkt/a.md", files[0].Path)
	assert.Equal(t, "", aws.ToString(client.listInputs[0].Prefix))
}

func TestS3_ListPaginates(t *testing.T) {
	client := &fakeS3Client{
		pages: []*s3.ListObjectsV2Output{
			{
				Contents: []types.Object{
					{Key: aws.String("docs/a.md"), Size: aws.Int64(5)},
				},
				IsTruncated:           aws.Bool(true),
				NextContinuationToken: aws.String("1"),
			},
			{
				Contents: []types.Object{
					{Key: aws.String("docs/b.md"), Size: aws.Int64(7)},
				},
			},
		},
	}
	src := newFakeS3Source(t, client)

	files, err := src.List(context.Background(), "docs", true)
	require.NoError(t, err)

	require.Len(t, files, 2)
	require.Len(t, client.listInputs, 2)
	assert.Equal(t, "1", aws.ToString(client.listInputs[1].ContinuationToken))
}

func TestS3_ListBucketMismatch(t *testing.T) {
	src := newFakeS3Source(t, &fakeS3Client{})

	_, err := src.List(context.Background(), "s3://other/docs", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "names bucket other")
}

func TestS3_ListError(t *testing.T) {
	client := &fakeS3Client{listErr: assert.AnError}
	src := newFakeS3Source(t, client)

	_, err := src.List(context.Background(), "docs", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list objects")
}

func TestS3_Fetch(t *testing.T) {
	client := &fakeS3Client{
		objects: map[string][]byte{"docs/a.md": []byte("# Alpha")},
	}
	src := newFakeS3Source(t, client)

	for _, path := range []string{"docs/a.md", "/docs/a.md", "s3://bkt/docs/a.md"} {
		data, err := src.Fetch(context.Background(), path)
		require.NoError(t, err, "path %s", path)
		assert.Equal(t, "# Alpha", string(data))
	}

	require.Len(t, client.getInputs, 3)
	for _, input := range client.getInputs {
		assert.Equal(t, "bkt", aws.ToString(input.Bucket))
		assert.Equal(t, "docs/a.md", aws.ToString(input.Key))
	}
}

func TestS3_FetchMissing(t *testing.T) {
	client := &fakeS3Client{objects: map[string][]byte{}}
	src := newFakeS3Source(t, client)

	_, err := src.Fetch(context.Background(), "docs/missing.md")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get object")
}

func TestS3_FetchBucketMismatch(t *testing.T) {
	src := newFakeS3Source(t, &fakeS3Client{})

	_, err := src.Fetch(context.Background(), "s3://other/docs/a.md")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "names bucket other")
}

func TestS3_VerifyBucket(t *testing.T) {
	client := &fakeS3Client{}
	src := newFakeS3Source(t, client)

	require.NoError(t, src.verifyBucket(context.Background()))
	assert.Equal(t, 1, client.headCalls)

	client.headErr = assert.AnError
	err := src.verifyBucket(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not accessible")
}
