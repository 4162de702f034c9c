package pipeline

import (
	"context"
	"fmt"
	"image"
	"testing"

	"github.com/MeKo-Tech/glean/internal/roles"
	"github.com/MeKo-Tech/glean/internal/testutil"
)

func chatBubbles(n int) []testutil.Bubble {
	bubbles := []testutil.Bubble{{Role: roles.RoleGroup, Text: "Benchmarks"}}
	for i := range n {
		role := roles.RoleSent
		if i%2 == 1 {
			role = roles.RoleReceived
		}
		bubbles = append(bubbles, testutil.Bubble{Role: role, Text: fmt.Sprintf("message number %d", i)})
	}
	return bubbles
}

func BenchmarkRunMessage(b *testing.B) {
	scene := testutil.ChatScene(480, chatBubbles(24))
	for _, workers := range []int{1, 4} {
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			p, err := NewBuilder().
				WithDetector(DomainMessage, scene.Detector()).
				WithRecognizer(scene.Recognizer()).
				WithWorkers(workers).
				Build()
			if err != nil {
				b.Fatal(err)
			}
			defer func() { _ = p.Close() }()

			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()
			for range b.N {
				if _, err := p.Run(ctx, DomainMessage, scene.Image); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkRunBatchPlate(b *testing.B) {
	scene := testutil.PlateScene(320, []string{"B MK 4711", "HH AB 12", "M XY 9000"})
	images := make([]image.Image, 16)
	for i := range images {
		images[i] = scene.Image
	}
	p, err := NewBuilder().
		WithDetector(DomainPlate, scene.Detector()).
		WithRecognizer(scene.Recognizer()).
		Build()
	if err != nil {
		b.Fatal(err)
	}
	defer func() { _ = p.Close() }()

	ctx := context.Background()
	b.ResetTimer()
	for range b.N {
		if _, err := p.RunBatch(ctx, DomainPlate, images, BatchConfig{MaxWorkers: 4}); err != nil {
			b.Fatal(err)
		}
	}
}
