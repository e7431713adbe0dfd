package diskio

// PageSize is the fixed byte size of every page moved between the buffer
// pool and the disk manager.
const PageSize = 4096

// PageID identifies a page. InvalidPageID is the reserved sentinel that no
// real page ever carries.
type PageID int32

// InvalidPageID denotes "no page" / "not yet allocated".
const InvalidPageID PageID = -1

// PageData is the fixed-size byte buffer carried by a single page.
type PageData [PageSize]byte
