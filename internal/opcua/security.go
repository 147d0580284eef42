package opcua

import (
	"fmt"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
	"github.com/orangescada/opcua/internal/domain"
)

var securityModes = map[domain.SecurityMode]ua.MessageSecurityMode{
	domain.SecurityModeNone:           ua.MessageSecurityModeNone,
	domain.SecurityModeSign:           ua.MessageSecurityModeSign,
	domain.SecurityModeSignAndEncrypt: ua.MessageSecurityModeSignAndEncrypt,
}

var securityPolicyURIs = map[domain.SecurityPolicy]string{
	domain.SecurityPolicyNone:               ua.SecurityPolicyURINone,
	domain.SecurityPolicyBasic128:           "http://opcfoundation.org/UA/SecurityPolicy#Basic128",
	domain.SecurityPolicyBasic128Rsa15:      ua.SecurityPolicyURIBasic128Rsa15,
	domain.SecurityPolicyBasic192:           "http://opcfoundation.org/UA/SecurityPolicy#Basic192",
	domain.SecurityPolicyBasic192Rsa15:      "http://opcfoundation.org/UA/SecurityPolicy#Basic192Rsa15",
	domain.SecurityPolicyBasic256:           ua.SecurityPolicyURIBasic256,
	domain.SecurityPolicyBasic256Rsa15:      ua.SecurityPolicyURIBasic256Rsa15,
	domain.SecurityPolicyBasic256Sha256:     ua.SecurityPolicyURIBasic256Sha256,
	domain.SecurityPolicyAes128Sha256RsaOaep: ua.SecurityPolicyURIAes128Sha256RsaOaep,
	domain.SecurityPolicyAes256Sha256RsaPss:  ua.SecurityPolicyURIAes256Sha256RsaPss,
}

// securityOptions translates the declared security mode/policy/identity
// names into gopcua Client Options. Certificate and private key files
// are only read when the policy is not None; this driver consumes but
// never generates PKI material.
func securityOptions(sec domain.SecurityOptions) ([]opcua.Option, error) {
	mode, ok := securityModes[sec.Mode]
	if !ok {
		return nil, fmt.Errorf("%w: unknown securityMode %q", domain.ErrConfigError, sec.Mode)
	}
	policyURI, ok := securityPolicyURIs[sec.Policy]
	if !ok {
		return nil, fmt.Errorf("%w: unknown securityPolicy %q", domain.ErrConfigError, sec.Policy)
	}

	opts := []opcua.Option{
		opcua.SecurityModeString(mode.String()),
		opcua.SecurityPolicy(policyURI),
	}

	if sec.Policy != domain.SecurityPolicyNone {
		opts = append(opts, opcua.CertificateFile(sec.CertificateFile), opcua.PrivateKeyFile(sec.PrivateKeyFile))
	}

	if sec.Anonymous {
		opts = append(opts, opcua.AuthAnonymous())
	} else {
		opts = append(opts, opcua.AuthUsername(sec.UserName, sec.Password))
	}

	return opts, nil
}
