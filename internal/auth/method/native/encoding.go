package native

import "encoding/base64"

// PHC strings use unpadded standard base64 for their salt and hash fields.
var phcEncoding = base64.RawStdEncoding

func b64Encode(b []byte) string { return phcEncoding.EncodeToString(b) }

func b64Decode(s string) ([]byte, error) { return phcEncoding.DecodeString(s) }
