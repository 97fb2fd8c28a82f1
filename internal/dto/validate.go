package dto

import (
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterValidations 向 gin 的校验器注册自定义 tag，绑定请求前需调用一次
//
//	rfc3339: 字符串为 RFC3339 时间
func RegisterValidations() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = fmt.Errorf("gin 校验器不是 validator/v10")
			return
		}
		registerErr = v.RegisterValidation("rfc3339", validateRFC3339)
	})
	return registerErr
}

func validateRFC3339(fl validator.FieldLevel) bool {
	_, err := time.Parse(time.RFC3339, fl.Field().String())
	return err == nil
}
