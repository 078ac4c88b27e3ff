package models

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// ImageList holds product image URLs. Older catalog documents store a single
// string or an array of {url} objects; both decode into the same list.
type ImageList []string

type imageRef struct {
	URL string `bson:"url"`
}

func (l *ImageList) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.Null, bsontype.Undefined:
		*l = nil
		return nil
	case bsontype.String:
		var url string
		if err := bson.UnmarshalValue(t, data, &url); err != nil {
			return err
		}
		*l = compactURLs([]string{url})
		return nil
	case bsontype.Array:
		var raw []bson.RawValue
		if err := bson.UnmarshalValue(t, data, &raw); err != nil {
			return err
		}
		urls := make([]string, 0, len(raw))
		for i, v := range raw {
			switch v.Type {
			case bsontype.String:
				urls = append(urls, v.StringValue())
			case bsontype.EmbeddedDocument:
				var ref imageRef
				if err := v.Unmarshal(&ref); err != nil {
					return fmt.Errorf("images[%d]: %w", i, err)
				}
				urls = append(urls, ref.URL)
			default:
				return fmt.Errorf("images[%d]: unexpected %s", i, v.Type)
			}
		}
		*l = compactURLs(urls)
		return nil
	default:
		return fmt.Errorf("cannot decode %s into ImageList", t)
	}
}

// MarshalBSONValue always writes a plain string array.
func (l ImageList) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(l.Strings())
}

// First returns the primary image or "".
func (l ImageList) First() string {
	if len(l) == 0 {
		return ""
	}
	return l[0]
}

// Strings never returns nil so JSON renders [] instead of null.
func (l ImageList) Strings() []string {
	if l == nil {
		return []string{}
	}
	return []string(l)
}

func compactURLs(in []string) ImageList {
	out := make(ImageList, 0, len(in))
	for _, u := range in {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
