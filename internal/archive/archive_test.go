package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

type fakeS3 struct {
	s3iface.S3API
	puts map[string]string
	fail bool
}

func (f *fakeS3) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error) {
	if f.fail {
		return nil, errors.New("access denied")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.puts == nil {
		f.puts = make(map[string]string)
	}
	f.puts[aws.StringValue(in.Key)] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func writeFiles(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, []byte(n), 0644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}
	return paths
}

func TestS3Publisher_Publish(t *testing.T) {
	fake := &fakeS3{}
	p := NewS3PublisherWithClient("deliverables", fake, nil)
	files := writeFiles(t, "slot_1_cruising_cam1.mp4", "job_20260314_093005.json")

	ref, err := p.Publish(context.Background(), "anna_20260314_abcd1234", files)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if ref != "s3://deliverables/anna_20260314_abcd1234/" {
		t.Errorf("ref = %q", ref)
	}
	if got := fake.puts["anna_20260314_abcd1234/slot_1_cruising_cam1.mp4"]; got != "slot_1_cruising_cam1.mp4" {
		t.Errorf("clip body = %q", got)
	}
	if len(fake.puts) != 2 {
		t.Errorf("expected 2 objects, got %d", len(fake.puts))
	}
}

func TestS3Publisher_PrefixCannotEscape(t *testing.T) {
	fake := &fakeS3{}
	p := NewS3PublisherWithClient("b", fake, nil)
	files := writeFiles(t, "a.edl")

	ref, err := p.Publish(context.Background(), "../../x", files)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if ref != "s3://b/x/" {
		t.Errorf("ref = %q", ref)
	}

	if _, err := p.Publish(context.Background(), "..", files); err == nil {
		t.Error("expected error for empty prefix")
	}
}

func TestS3Publisher_Errors(t *testing.T) {
	p := NewS3PublisherWithClient("b", &fakeS3{fail: true}, nil)
	if _, err := p.Publish(context.Background(), "p", writeFiles(t, "a.mp4")); err == nil {
		t.Error("expected put error")
	}

	p = NewS3PublisherWithClient("b", &fakeS3{}, nil)
	if _, err := p.Publish(context.Background(), "p", []string{"/does/not/exist.mp4"}); err == nil {
		t.Error("expected open error")
	}
}

func TestNopPublisher(t *testing.T) {
	ref, err := NopPublisher{}.Publish(context.Background(), "p", []string{"x"})
	if err != nil || ref != "" {
		t.Errorf("NopPublisher = %q, %v", ref, err)
	}
}
