package archive

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/qmchamm/confbag/meta"
)

// encMode uses Core Deterministic Encoding: sorted map keys and the
// shortest form of every number, so equal attributes give equal bytes.
var encMode cbor.EncMode

// decMode hands back map[string]any for nested maps and int64 for every
// integer.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("archive: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic("archive: CBOR decoder initialization failed: " + err.Error())
	}
}

// attributeMap turns attributes into the map stored in attributes.cbor.
// Values that are not int, float64 or string are stored as their text.
// Text is made valid UTF-8, which the decoder requires.
func attributeMap(attrs []meta.Attribute) map[string]any {
	result := make(map[string]any, len(attrs))
	for _, a := range attrs {
		switch v := a.Value.(type) {
		case int, float64:
			result[a.Name] = v
		case string:
			result[a.Name] = strings.ToValidUTF8(v, "\uFFFD")
		default:
			result[a.Name] = strings.ToValidUTF8(fmt.Sprint(v), "\uFFFD")
		}
	}
	return result
}

func encodeAttributes(attrs []meta.Attribute) ([]byte, error) {
	return encMode.Marshal(attributeMap(attrs))
}

func decodeAttributes(data []byte) (map[string]any, error) {
	var result map[string]any
	if err := decMode.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	for k, v := range result {
		if n, ok := v.(int64); ok && n >= math.MinInt && n <= math.MaxInt {
			result[k] = int(n)
		}
	}
	return result, nil
}

// tagValue renders an attribute for bag-info.txt, which is line based.
func tagValue(v any) string {
	var s string
	switch x := v.(type) {
	case float64:
		s = strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		s = strconv.Itoa(x)
	default:
		s = fmt.Sprint(x)
	}
	return strings.Join(strings.Fields(strings.ToValidUTF8(s, "\uFFFD")), " ")
}
