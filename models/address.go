package models

import "strings"

// Address 调用方身份，由结算底层保证稳定
type Address string

func (a Address) IsZero() bool { return strings.TrimSpace(string(a)) == "" }

func (a Address) String() string { return string(a) }

// Page 分页查询结果，Values按插入顺序升序
type Page struct {
	Values []uint64 `json:"values"`
	Count  int      `json:"count"`
	Offset int      `json:"offset"`
	Limit  int      `json:"limit"`
}

// Paginate 对已排序的id列表做偏移截取
func Paginate(ids []uint64, offset, limit int) Page {
	page := Page{Values: []uint64{}, Count: len(ids), Offset: offset, Limit: limit}
	if offset < 0 || limit <= 0 || offset >= len(ids) {
		return page
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	page.Values = append(page.Values, ids[offset:end]...)
	return page
}
