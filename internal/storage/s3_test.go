package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	uploaded   map[string]string
	deleted    []string
	presigned  []string
	failDelete bool
}

func (f *fakeS3) Upload(_ context.Context, input *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	if f.uploaded == nil {
		f.uploaded = map[string]string{}
	}
	f.uploaded[*input.Key] = string(body)
	return &manager.UploadOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.failDelete {
		return nil, errors.New("access denied")
	}
	f.deleted = append(f.deleted, *params.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) PresignPutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.presigned = append(f.presigned, *params.Key)
	return &v4.PresignedHTTPRequest{URL: "https://signed.example.com/" + *params.Key + "?X-Amz-Signature=abc", Method: "PUT"}, nil
}

func newFakeStorage(fake *fakeS3) *S3Storage {
	return &S3Storage{
		uploader:   fake,
		deleter:    fake,
		presigner:  fake,
		bucket:     "media",
		baseURL:    "https://cdn.example.com",
		presignTTL: 10 * time.Minute,
	}
}

func TestSaveReturnsPublicURL(t *testing.T) {
	fake := &fakeS3{}
	store := newFakeStorage(fake)

	url, err := store.Save(context.Background(), "/avatars/u1/a.png", "image/png", strings.NewReader("png"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/avatars/u1/a.png", url)
	assert.Equal(t, "png", fake.uploaded["avatars/u1/a.png"])

	_, err = store.Save(context.Background(), "", "image/png", strings.NewReader(""))
	assert.Error(t, err)
}

func TestPresignUpload(t *testing.T) {
	fake := &fakeS3{}
	store := newFakeStorage(fake)

	upload, err := store.PresignUpload(context.Background(), "videos/u1/clip.mp4", "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, "videos/u1/clip.mp4", upload.Key)
	assert.Equal(t, "https://cdn.example.com/videos/u1/clip.mp4", upload.PublicURL)
	assert.Contains(t, upload.UploadURL, "X-Amz-Signature")
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), upload.ExpiresAt, 5*time.Second)
}

func TestDeleteMapsURLToKey(t *testing.T) {
	fake := &fakeS3{}
	store := newFakeStorage(fake)

	require.NoError(t, store.Delete(context.Background(), "https://cdn.example.com/videos/u1/clip.mp4?tr=w-1920"))
	assert.Equal(t, []string{"videos/u1/clip.mp4"}, fake.deleted)

	err := store.Delete(context.Background(), "https://elsewhere.example.com/videos/u1/clip.mp4")
	assert.ErrorIs(t, err, ErrForeignURL)

	fake.failDelete = true
	err = store.Delete(context.Background(), "https://cdn.example.com/videos/u1/other.mp4")
	assert.ErrorContains(t, err, "access denied")
}

func TestKeyFromURL(t *testing.T) {
	store := newFakeStorage(&fakeS3{})

	key, ok := store.KeyFromURL("https://cdn.example.com/thumbnails/u1/t.jpg")
	assert.True(t, ok)
	assert.Equal(t, "thumbnails/u1/t.jpg", key)

	_, ok = store.KeyFromURL("https://cdn.example.com/")
	assert.False(t, ok)

	_, ok = store.KeyFromURL("https://cdn.example.com.evil.test/x")
	assert.False(t, ok)
}

func TestObjectKey(t *testing.T) {
	key, err := ObjectKey(KindVideo, "u1", "video/mp4")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "videos/u1/"), key)
	assert.True(t, strings.HasSuffix(key, ".mp4"), key)

	key, err = ObjectKey(KindThumbnail, "u1", "image/jpeg")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "thumbnails/u1/"), key)
	assert.True(t, strings.HasSuffix(key, ".jpg"), key)

	key, err = ObjectKey(KindAvatar, "u1", "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "avatars/u1/"), key)
	assert.True(t, strings.HasSuffix(key, ".png"), key)

	_, err = ObjectKey(KindThumbnail, "u1", "video/mp4")
	assert.Error(t, err)

	_, err = ObjectKey("document", "u1", "application/pdf")
	assert.Error(t, err)
}

func TestExtensionFor(t *testing.T) {
	cases := map[string]string{
		"video/mp4":                 ".mp4",
		"video/webm":                ".webm",
		"image/jpeg":                ".jpg",
		"IMAGE/PNG":                 ".png",
		"image/webp; charset=utf-8": ".webp",
		"application/x-unknown-vs":  "",
	}
	for contentType, want := range cases {
		assert.Equal(t, want, extensionFor(contentType), contentType)
	}
}
