package objstore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
	"time"
)

const sigV4Algorithm = "AWS4-HMAC-SHA256"

// signer computes AWS Signature Version 4 headers for single-chunk requests
// with an empty query string.
type signer struct {
	accessKeyID string
	secret      string
	region      string
	service     string
}

func (s signer) scope(date string) string {
	return date + "/" + s.region + "/" + s.service + "/aws4_request"
}

func (s signer) sign(req *http.Request, uri, payloadHash string, now time.Time) {
	amzDate := now.Format("20060102T150405Z")
	date := now.Format("20060102")

	req.Header.Set("x-amz-content-sha256", payloadHash)
	req.Header.Set("x-amz-date", amzDate)

	headers := map[string]string{
		"host":                 req.URL.Host,
		"x-amz-content-sha256": payloadHash,
		"x-amz-date":           amzDate,
	}
	names := make([]string, 0, len(headers))
	for k := range headers {
		names = append(names, k)
	}
	sort.Strings(names)

	var canon strings.Builder
	for _, k := range names {
		canon.WriteString(k)
		canon.WriteByte(':')
		canon.WriteString(strings.TrimSpace(headers[k]))
		canon.WriteByte('\n')
	}
	signed := strings.Join(names, ";")

	request := req.Method + "\n" + uri + "\n\n" + canon.String() + "\n" + signed + "\n" + payloadHash
	toSign := sigV4Algorithm + "\n" + amzDate + "\n" + s.scope(date) + "\n" + sha256Hex([]byte(request))

	sig := hex.EncodeToString(hmacSHA256(s.signingKey(date), []byte(toSign)))
	req.Header.Set("Authorization", sigV4Algorithm+
		" Credential="+s.accessKeyID+"/"+s.scope(date)+
		", SignedHeaders="+signed+
		", Signature="+sig)
}

func (s signer) signingKey(date string) []byte {
	k := hmacSHA256([]byte("AWS4"+s.secret), []byte(date))
	k = hmacSHA256(k, []byte(s.region))
	k = hmacSHA256(k, []byte(s.service))
	return hmacSHA256(k, []byte("aws4_request"))
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	_, _ = h.Write(data)
	return h.Sum(nil)
}
