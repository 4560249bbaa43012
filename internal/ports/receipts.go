package ports

import (
	"context"
	"io"
	"net/url"
)

type Meta struct {
	ContentType string
	Size        int64
	Bucket      string
	Key         string
}

type ReceiptStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (Meta, error)
	Open(ctx context.Context, key string) (io.ReadCloser, Meta, error)
}

// ReceiptKey is the object key of a payment receipt.
func ReceiptKey(debtorID, transactionID string) string {
	return "receipts/" + debtorID + "/" + url.PathEscape(transactionID) + ".json"
}
