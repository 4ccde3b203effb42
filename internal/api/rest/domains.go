package rest

import (
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenFieldbusCore/internal/fieldbus"
	"github.com/gin-gonic/gin"
)

type ReadDataRequest struct {
	ByteOffset int `json:"byte_offset"`
	// Width in bits: 1, 8, 16 or 32
	Width       int   `json:"width" binding:"required,oneof=1 8 16 32"`
	BitPosition uint8 `json:"bit_position"`
}

type WriteDataRequest struct {
	ByteOffset  int    `json:"byte_offset"`
	Width       int    `json:"width" binding:"required,oneof=1 8 16 32"`
	BitPosition uint8  `json:"bit_position"`
	Value       uint32 `json:"value"`
}

// POST /api/v1/domains
func (s *Server) createDomain(c *gin.Context) {
	id, err := s.lm.Session().CreateDomain()
	if err != nil {
		fieldbusError(c, "DOMAIN_CREATE", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"domain_id": id})
}

// GET /api/v1/domains
func (s *Server) listDomains(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"domain_ids": s.lm.Session().DomainIDs()})
}

func (s *Server) domainView(c *gin.Context) (*fieldbus.DomainDataView, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("DOMAIN_400", "Invalid domain id", err.Error()))
		return nil, false
	}

	view, err := s.lm.Session().DomainView(id)
	if err != nil {
		fieldbusError(c, "DOMAIN_VIEW", err)
		return nil, false
	}
	return view, true
}

// POST /api/v1/domains/:id/read
func (s *Server) readDomainData(c *gin.Context) {
	var req ReadDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("DOMAIN_400", "Invalid request body", err.Error()))
		return
	}

	view, ok := s.domainView(c)
	if !ok {
		return
	}

	var value uint32
	var err error
	switch req.Width {
	case 1:
		var bit bool
		bit, err = view.ReadBit(req.ByteOffset, req.BitPosition)
		if bit {
			value = 1
		}
	case 8:
		var v uint8
		v, err = view.ReadUint8(req.ByteOffset)
		value = uint32(v)
	case 16:
		var v uint16
		v, err = view.ReadUint16(req.ByteOffset)
		value = uint32(v)
	case 32:
		value, err = view.ReadUint32(req.ByteOffset)
	}

	if err != nil {
		fieldbusError(c, "DOMAIN_READ", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"byte_offset": req.ByteOffset,
		"width":       req.Width,
		"value":       value,
	})
}

// POST /api/v1/domains/:id/write
func (s *Server) writeDomainData(c *gin.Context) {
	var req WriteDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("DOMAIN_400", "Invalid request body", err.Error()))
		return
	}

	view, ok := s.domainView(c)
	if !ok {
		return
	}

	var err error
	switch req.Width {
	case 1:
		err = view.WriteBit(req.ByteOffset, req.BitPosition, req.Value != 0)
	case 8:
		err = view.WriteUint8(req.ByteOffset, uint8(req.Value))
	case 16:
		err = view.WriteUint16(req.ByteOffset, uint16(req.Value))
	case 32:
		err = view.WriteUint32(req.ByteOffset, req.Value)
	}

	if err != nil {
		fieldbusError(c, "DOMAIN_WRITE", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "written"})
}
