package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wx-shi/memo-wallet/internal/db"
	"github.com/wx-shi/memo-wallet/internal/model"
)

func (s *Server) statusHandle() func(ctx *gin.Context) {
	return func(ctx *gin.Context) {
		states, err := db.States(s.store)
		if err != nil {
			s.fail(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{
			"code": http.StatusOK,
			"data": states,
		})
	}
}

// identityHandle 只返回地址, 不返回助记词和私钥
func (s *Server) identityHandle() func(ctx *gin.Context) {
	return func(ctx *gin.Context) {
		var identity model.WalletIdentity
		if err := db.LoadJSON(s.store, model.KindIdentity, &identity); err != nil {
			s.fail(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{
			"code": http.StatusOK,
			"data": model.IdentityReply{
				Network:       s.net.Name,
				CashAddress:   identity.CashAddress,
				LegacyAddress: identity.LegacyAddress,
			},
		})
	}
}

func (s *Server) memoHandle() func(ctx *gin.Context) {
	return func(ctx *gin.Context) {
		var memo model.MemoRecord
		if err := db.LoadJSON(s.store, model.KindMemo, &memo); err != nil {
			s.fail(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{
			"code": http.StatusOK,
			"data": memo,
		})
	}
}

// snapshotHandle 原样返回索引服务的响应
func (s *Server) snapshotHandle() func(ctx *gin.Context) {
	return func(ctx *gin.Context) {
		body, err := s.store.Load(model.KindSnapshot)
		if err != nil {
			s.fail(ctx, err)
			return
		}
		ctx.Data(http.StatusOK, "application/json; charset=utf-8", body)
	}
}

func (s *Server) fail(ctx *gin.Context, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, model.ErrNotFound) {
		code = http.StatusNotFound
	}
	ctx.JSON(code, gin.H{
		"code": code,
		"msg":  err.Error(),
	})
}
