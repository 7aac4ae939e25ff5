package utils

import (
	"reflect"
	"strings"
)

// MaskSensitiveData keeps the first and last two characters of a
// credential visible so operators can tell keys apart in output
// without exposing them.
func MaskSensitiveData(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}

// RedactSecrets walks maps, structs and slices and replaces the value
// of any key or field whose name looks like a credential. It returns a
// plain map/slice copy suitable for JSON encoding; the input is never
// mutated.
func RedactSecrets(v interface{}) interface{} {
	suspicious := map[string]struct{}{
		"password": {}, "pass": {}, "pwd": {}, "secret": {}, "token": {}, "access_token": {},
		"refresh_token": {}, "apikey": {}, "api_key": {}, "api_key_hash": {}, "authorization": {},
		"auth": {}, "cookie": {}, "jwt": {}, "jwt_secret": {}, "private_key": {}, "client_secret": {},
	}
	return redactRecursive(v, suspicious)
}

func redactRecursive(v interface{}, keys map[string]struct{}) interface{} {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			if _, found := keys[strings.ToLower(k)]; found {
				out[k] = "[REDACTED]"
				continue
			}
			out[k] = redactRecursive(iter.Value().Interface(), keys)
		}
		return out

	case reflect.Struct:
		out := make(map[string]interface{}, rv.NumField())
		rt := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			f := rt.Field(i)
			// export only
			if f.PkgPath != "" {
				continue
			}
			name := f.Name
			jsonTag := f.Tag.Get("json")
			if jsonTag != "" && jsonTag != "-" {
				name = strings.Split(jsonTag, ",")[0]
				if name == "" {
					name = f.Name
				}
			}
			if _, found := keys[strings.ToLower(name)]; found {
				out[name] = "[REDACTED]"
				continue
			}
			out[name] = redactRecursive(rv.Field(i).Interface(), keys)
		}
		return out

	case reflect.Slice, reflect.Array:
		n := rv.Len()
		out := make([]interface{}, n)
		for i := 0; i < n; i++ {
			out[i] = redactRecursive(rv.Index(i).Interface(), keys)
		}
		return out

	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return redactRecursive(rv.Elem().Interface(), keys)

	default:
		return v
	}
}
