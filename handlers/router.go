package handlers

import "github.com/gin-gonic/gin"

// Routes is implemented by every handler in this package.
type Routes interface {
	Register(rg *gin.RouterGroup, g Guards)
}

// Mount registers each handler's routes on rg.
func Mount(rg *gin.RouterGroup, g Guards, hs ...Routes) {
	for _, h := range hs {
		h.Register(rg, g)
	}
}
