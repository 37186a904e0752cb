package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	bodies  [][]byte
	deletes []string
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deletes = append(f.deletes, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, f.err
}

func TestParseDataURL(t *testing.T) {
	ct, data, err := parseDataURL("data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, []byte("hello"), data)

	_, _, err = parseDataURL("https://img.test/a.png")
	assert.ErrorIs(t, err, errNotDataURL)

	_, _, err = parseDataURL("data:image/png,plain")
	assert.Error(t, err)

	_, _, err = parseDataURL("data:image/png;base64,%%%")
	assert.Error(t, err)
}

func TestS3ImageStore_Save(t *testing.T) {
	fake := &fakeS3{}
	store := &S3ImageStore{client: fake, bucket: "thumbs", logger: testLogger}

	url, key, err := store.Save(context.Background(), "thumbnails/u/1", "data:image/jpeg;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "thumbnails/u/1.jpg", key)
	assert.Equal(t, "s3://thumbs/thumbnails/u/1.jpg", url)
	require.Len(t, fake.puts, 1)
	assert.Equal(t, "image/jpeg", aws.ToString(fake.puts[0].ContentType))
	assert.Equal(t, []byte("hello"), fake.bodies[0])

	url, key, err = store.Save(context.Background(), "thumbnails/u/2", "https://img.test/x.png")
	require.NoError(t, err)
	assert.Equal(t, "https://img.test/x.png", url)
	assert.Empty(t, key)
	assert.Len(t, fake.puts, 1)
}

func TestS3ImageStore_SaveError(t *testing.T) {
	store := &S3ImageStore{client: &fakeS3{err: errors.New("boom")}, bucket: "thumbs", logger: testLogger}
	_, _, err := store.Save(context.Background(), "k", "data:image/png;base64,aGk=")
	assert.ErrorContains(t, err, "boom")
}

func TestS3ImageStore_Delete(t *testing.T) {
	fake := &fakeS3{}
	store := &S3ImageStore{client: fake, bucket: "thumbs", logger: testLogger}

	require.NoError(t, store.Delete(context.Background(), ""))
	require.NoError(t, store.Delete(context.Background(), "thumbnails/u/1.png"))
	assert.Equal(t, []string{"thumbnails/u/1.png"}, fake.deletes)
}
