package repository

// pageBounds clamps pagination input and returns LIMIT/OFFSET values.
func pageBounds(page, size int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return size, (page - 1) * size
}
