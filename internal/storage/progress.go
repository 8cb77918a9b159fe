package storage

import (
	"io"
	"log"
	"time"

	"github.com/marianozunino/gatedrop/internal/utils"
)

const progressStep = 10 * 1024 * 1024

// progressReader wraps an io.Reader and logs every 10MB written
type progressReader struct {
	reader    io.Reader
	total     int64
	current   int64
	nextLog   int64
	key       string
	startTime time.Time
}

func newProgressReader(reader io.Reader, total int64, key string) *progressReader {
	return &progressReader{
		reader:    reader,
		total:     total,
		key:       key,
		nextLog:   progressStep,
		startTime: time.Now(),
	}
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.current += int64(n)

	if pr.total > 0 && pr.current >= pr.nextLog {
		pr.nextLog += progressStep
		percentage := float64(pr.current) / float64(pr.total) * 100
		log.Printf("Upload progress: %s - %.1f%% (%s/%s) - %.2f MB/s",
			pr.key, percentage, utils.FormatFileSize(pr.current), utils.FormatFileSize(pr.total), pr.speed())
	}
	return n, err
}

// speed returns the average throughput in MB/s
func (pr *progressReader) speed() float64 {
	elapsed := time.Since(pr.startTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(pr.current) / elapsed / 1024 / 1024
}
