package security

// ValidateLinkURL は保存対象リンクのURLを検証する。
// 保存リンクはサーバーから取得しないため、IPアドレスの制限は行わず
// http/httpsスキームと空でないホストのみを要求する。
// javascript: や data: スキームはここで拒否される。
func ValidateLinkURL(rawURL string) error {
	_, err := parseHTTPURL(rawURL)
	return err
}
