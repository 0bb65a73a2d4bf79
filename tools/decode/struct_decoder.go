package decode

import (
	"PPChat/tools/errs"
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

var jsonNumberType = reflect.TypeOf(json.Number(""))

// JSONObject 解析 JSON 对象，数字保留为 json.Number
func JSONObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errs.New("not a json object")
	}
	return m, nil
}

// Map 将 JSONObject 的结果解码到 T，字段读取使用 `json` tag；未知字段忽略，类型不符报错
func Map[T any](m map[string]any) (*T, error) {
	if m == nil {
		return nil, errs.New("map is nil")
	}
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     &out,
		DecodeHook: strictNumberHook,
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "new decoder")
	}
	if err := dec.Decode(m); err != nil {
		return nil, errs.WrapMsg(err, "decode struct")
	}
	return &out, nil
}

// Field 读取 m[key] 并解码到 T；key 不存在或为 null 时 ok=false
func Field[T any](m map[string]any, key string) (out *T, ok bool, err error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, false, nil
	}
	sub, isMap := v.(map[string]any)
	if !isMap {
		return nil, true, errs.New("field not object", "field", key, "type", reflect.TypeOf(v))
	}
	out, err = Map[T](sub)
	return out, true, err
}

func ReadString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", errs.New("missing field", "field", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", errs.New("field not string", "field", key, "type", reflect.TypeOf(v))
	}
	return s, nil
}

// strictNumberHook json.Number 的 Kind 是 string，不拦截会被当作字符串接受
func strictNumberHook(from, to reflect.Type, data any) (any, error) {
	if from == jsonNumberType && to.Kind() == reflect.String {
		return nil, errs.New("number not string", "value", data)
	}
	return data, nil
}
