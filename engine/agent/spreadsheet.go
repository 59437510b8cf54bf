package agent

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3PutAPI is the subset of *s3.Client a SpreadsheetURLFunc needs, so tests
// can stub it rather than talking to a real bucket.
type s3PutAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3SpreadsheetWriter returns a SpreadsheetURLFunc that renders a
// DBQueryAgent result as CSV and uploads it to bucket under the key
// "dbquery/<query id>.csv".
// Grounded on the original system's sheets_service.create_spreadsheet,
// which materializes a query result as a shared spreadsheet and returns its
// URL — the same side-effect, produced with the object-store client this
// platform already carries instead of a Google Sheets API client that has
// no analog anywhere in the retrieval pack.
func NewS3SpreadsheetWriter(client s3PutAPI, bucket string) SpreadsheetURLFunc {
	return func(ctx context.Context, queryID string, columns []string, rows [][]any) (string, error) {
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if len(columns) > 0 {
			if err := w.Write(columns); err != nil {
				return "", fmt.Errorf("write csv header: %w", err)
			}
		}
		for _, row := range rows {
			record := make([]string, len(row))
			for i, v := range row {
				record[i] = fmt.Sprint(v)
			}
			if err := w.Write(record); err != nil {
				return "", fmt.Errorf("write csv row: %w", err)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return "", fmt.Errorf("flush csv: %w", err)
		}

		key := fmt.Sprintf("dbquery/%s.csv", queryID)
		_, err := client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(buf.Bytes()),
			ContentType: aws.String("text/csv"),
		})
		if err != nil {
			return "", fmt.Errorf("upload spreadsheet export: %w", err)
		}
		return fmt.Sprintf("s3://%s/%s", bucket, key), nil
	}
}
