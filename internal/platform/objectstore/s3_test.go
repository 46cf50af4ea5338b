package objectstore

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	s3iface.S3API
	objects  map[string]string
	pageSize int
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeS3) ListObjectsV2PagesWithContext(_ aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, _ ...request.Option) error {
	prefix := aws.StringValue(in.Bucket) + "/" + aws.StringValue(in.Prefix)
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, strings.TrimPrefix(k, aws.StringValue(in.Bucket)+"/"))
		}
	}
	sort.Strings(keys)

	for start := 0; start < len(keys) || start == 0; start += f.pageSize {
		end := start + f.pageSize
		if end > len(keys) {
			end = len(keys)
		}
		page := &s3.ListObjectsV2Output{}
		for _, k := range keys[start:end] {
			page.Contents = append(page.Contents, &s3.Object{Key: aws.String(k), Size: aws.Int64(int64(len(f.objects[aws.StringValue(in.Bucket)+"/"+k])))})
		}
		if !fn(page, end == len(keys)) || end == len(keys) {
			return nil
		}
	}
	return nil
}

func TestS3_Fetch(t *testing.T) {
	store := NewS3WithClient(&fakeS3{objects: map[string]string{"keys/g/k1": "0123456789abcdef"}})

	b, err := store.Fetch(context.Background(), "keys", "g/k1")
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef", string(b))
}

func TestS3_Fetch_not_found(t *testing.T) {
	store := NewS3WithClient(&fakeS3{objects: map[string]string{}})

	_, err := store.Fetch(context.Background(), "keys", "g/missing")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestS3_List_pages(t *testing.T) {
	store := NewS3WithClient(&fakeS3{pageSize: 2, objects: map[string]string{
		"subs/video1_nor.vtt": "WEBVTT",
		"subs/video1_eng.vtt": "WEBVTT",
		"subs/video1_eng.srt": "1",
		"subs/video2_nor.vtt": "WEBVTT",
	}})

	objs, err := store.List(context.Background(), "subs", "video1")
	require.NoError(t, err)

	var keys []string
	for _, o := range objs {
		keys = append(keys, o.Key)
	}
	assert.Equal(t, []string{"video1_eng.srt", "video1_eng.vtt", "video1_nor.vtt"}, keys)
}
