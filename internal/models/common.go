package models

// Pagination contains paging metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes TotalPages from the aggregate count.
func NewPagination(page, pageSize, totalCount int) Pagination {
	p := Pagination{Page: page, PageSize: pageSize, TotalCount: totalCount}
	if pageSize > 0 {
		p.TotalPages = (totalCount + pageSize - 1) / pageSize
	}
	return p
}
